package events

import (
	"strconv"
	"strings"
)

// Messages holds the templates used to render events as text. Placeholders
// are %text, %version, %count and %name.
type Messages struct {
	ServerOnline  string `json:"server_online" yaml:"server_online"`
	ServerOffline string `json:"server_offline" yaml:"server_offline"`
	CountJoin     string `json:"count_join" yaml:"count_join"`
	CountLeave    string `json:"count_leave" yaml:"count_leave"`
	NameJoin      string `json:"name_join" yaml:"name_join"`
	NameLeave     string `json:"name_leave" yaml:"name_leave"`
}

// DefaultMessages returns the stock templates.
func DefaultMessages() Messages {
	return Messages{
		ServerOnline:  "Server status: online\r\nVersion: <code>%version</code>\r\nMOTD:\r\n<code>%text</code>",
		ServerOffline: "Server status: offline\r\nReason:\r\n<code>%text</code>",
		CountJoin:     "%count player joined.",
		CountLeave:    "%count player left.",
		NameJoin:      "+ %name",
		NameLeave:     "- %name",
	}
}

// withDefaults fills empty templates from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.ServerOnline == "" {
		m.ServerOnline = d.ServerOnline
	}
	if m.ServerOffline == "" {
		m.ServerOffline = d.ServerOffline
	}
	if m.CountJoin == "" {
		m.CountJoin = d.CountJoin
	}
	if m.CountLeave == "" {
		m.CountLeave = d.CountLeave
	}
	if m.NameJoin == "" {
		m.NameJoin = d.NameJoin
	}
	if m.NameLeave == "" {
		m.NameLeave = d.NameLeave
	}
	return m
}

// Render formats a single event.
func (m Messages) Render(ev Event) string {
	m = m.withDefaults()

	switch p := ev.Payload.(type) {
	case OnlineStatusPayload:
		if p.Online {
			return fill(m.ServerOnline, "%version", p.Version, "%text", p.Motd)
		}
		return fill(m.ServerOffline, "%text", p.ErrorSummary)
	case PlayerCountPayload:
		if p.Delta < 0 {
			return fill(m.CountLeave, "%count", strconv.Itoa(-p.Delta))
		}
		return fill(m.CountJoin, "%count", strconv.Itoa(p.Delta))
	case PlayerPayload:
		if ev.Type == EventPlayerLeft {
			return fill(m.NameLeave, "%name", p.Player.DisplayName())
		}
		return fill(m.NameJoin, "%name", p.Player.DisplayName())
	}
	return string(ev.Type)
}

// RenderBatch formats every event of a batch, one per line.
func (m Messages) RenderBatch(batch Batch) string {
	lines := make([]string, 0, len(batch.Events))
	for _, ev := range batch.Events {
		lines = append(lines, m.Render(ev))
	}
	return strings.Join(lines, "\r\n")
}

func fill(tmpl string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
