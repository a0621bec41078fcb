package conversation

import "regexp"

// Intent is what an utterance asks the controller to do.
type Intent int

const (
	// IntentFresh starts a new search from page 0.
	IntentFresh Intent = iota
	// IntentContinuation asks for the next page of the previous search.
	IntentContinuation
	// IntentReset clears the conversation state without a network call.
	IntentReset
)

func (i Intent) String() string {
	switch i {
	case IntentContinuation:
		return "continuation"
	case IntentReset:
		return "reset"
	default:
		return "fresh"
	}
}

// Classifier maps trimmed user input to an Intent. It only looks at the
// text; the controller downgrades a continuation to fresh when there is no
// previous query to continue.
type Classifier interface {
	Classify(text string) Intent
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) Intent

// Classify implements Classifier.
func (f ClassifierFunc) Classify(text string) Intent { return f(text) }

var (
	resetRe = regexp.MustCompile(`(?i)^reset$`)
	moreRe  = regexp.MustCompile(`(?i)\b(m[aá]s|siguientes?|ver\s+m[aá]s|otras?)\b`)
)

// SpanishClassifier recognizes "reset" and the Spanish "more/next/another"
// phrasings.
type SpanishClassifier struct{}

// Classify implements Classifier.
func (SpanishClassifier) Classify(text string) Intent {
	switch {
	case resetRe.MatchString(text):
		return IntentReset
	case moreRe.MatchString(text):
		return IntentContinuation
	default:
		return IntentFresh
	}
}
