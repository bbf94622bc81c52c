package handlers

import (
	"github.com/m3rciful/gradebot/core/telegram/dispatch"
	"github.com/m3rciful/gradebot/core/telegram/event"
	"github.com/m3rciful/gradebot/core/telegram/outbound"
	"github.com/m3rciful/gradebot/core/telegram/router"
)

const (
	cancelledText   = "Cancelled"
	zeroMessageText = "You are not in a command.\nPick one from the menu."
	unsupportedText = "Unsupported action"
)

func (h *Handlers) registerCommon(r *router.Router) {
	r.Always("common.cancel", router.Command("/cancel"), h.cancel)
	r.Fallback("common.zero", h.zero)
}

// cancel ends any flow.
func (h *Handlers) cancel(u *dispatch.Update) error {
	ctx := u.Context()
	if err := u.Session.Clear(ctx); err != nil {
		return err
	}
	return h.reply(ctx, u.Chat(), cancelledText, outbound.RemoveKeyboard{}, outbound.TagNone)
}

// zero answers everything no other route took.
func (h *Handlers) zero(u *dispatch.Update) error {
	if cb, ok := u.Event.(event.Callback); ok {
		return h.answer(u.Context(), cb, unsupportedText)
	}
	return h.reply(u.Context(), u.Chat(), zeroMessageText, nil, outbound.TagZeroMessage)
}
