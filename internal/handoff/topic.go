// Package handoff hands a visitor over to the external messaging app.
//
// It decorates messaging-host links with a prefilled message, derives the
// platform specific link variants at click time, and races an "app opened"
// guess against a bounded timer before falling back to the web URL.
package handoff

import (
	"regexp"
	"strings"
)

const (
	defaultTopic = "Quiero una cotización"
	interestVerb = "Me interesa "
)

var (
	greetingRe  = regexp.MustCompile(`(?i)^(?:\s*(?:hola|buen[oa]s(?:\s+(?:d[ií]as|tardes|noches))?|saludos|hey|qu[eé]\s+tal|por\s+favor)\b[\s,.;:!¡]*)+`)
	recommendRe = regexp.MustCompile(`(?i)^(?:me\s+)?(?:recomi[eé]nd[ae]me|recomi[eé]nd[ae]nme|recomiendas|puedes\s+recomendarme|podr[ií]as\s+recomendarme|me\s+puedes\s+recomendar)\b[\s,.:]*`)
	intentRe    = regexp.MustCompile(`(?i)^(?:quiero|quisiera|necesito|busco|estoy\s+buscando|me\s+interesa|me\s+interesan)(?:\s|$)`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Topic turns the most recent query into the subject of the prefilled
// message.
func Topic(lastQuery string) string {
	t := strings.TrimSpace(spaceRe.ReplaceAllString(lastQuery, " "))
	t = strings.TrimSpace(greetingRe.ReplaceAllString(t, ""))
	t = strings.TrimSpace(recommendRe.ReplaceAllString(t, ""))
	if t == "" {
		return defaultTopic
	}
	if intentRe.MatchString(t) {
		return t
	}
	return interestVerb + t
}

// Greeting opens the prefilled message, naming the visitor when known.
func Greeting(name string) string {
	name = strings.TrimSpace(spaceRe.ReplaceAllString(name, " "))
	if name == "" {
		return "Hola."
	}
	return "Hola, soy " + name + "."
}

// Message composes greeting and topic into one sentence.
func Message(name, lastQuery string) string {
	return Greeting(name) + " " + Topic(lastQuery)
}
