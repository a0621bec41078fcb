package widget

import (
	"context"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/rs/zerolog/log"
)

// presenter turns controller output into commands.
type presenter struct {
	ctx context.Context
	out *Outbox
}

func (p *presenter) send(cmd Command) {
	if err := p.out.Send(p.ctx, cmd); err != nil {
		log.Debug().Err(err).Str("type", cmd.Type).Msg("Dropping command for closed widget")
	}
}

func (p *presenter) AppendMessage(role domain.Role, markup string) {
	p.send(Command{Type: CmdMessage, Role: role, HTML: markup})
}

func (p *presenter) ShowResults(products []domain.Product, hasMore bool) {
	p.send(Command{Type: CmdResults, HTML: RenderCards(products), HasMore: hasMore})
}

func (p *presenter) ClearShowMore() {
	p.send(Command{Type: CmdClearShowMore})
}

func (p *presenter) SetBusy(busy bool) {
	p.send(Command{Type: CmdBusy, Busy: boolPtr(busy)})
}
