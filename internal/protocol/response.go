package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energizer-project/mcwatch/internal/status"
)

// FaviconPrefix must lead every usable favicon value.
const FaviconPrefix = "data:image/png;base64,"

// textComponent is one entry of description.extra.
type textComponent struct {
	Text string
}

// InterpretStatus extracts snapshot fields from a status JSON payload.
// Icon and sample problems are logged and degrade to absent values; missing
// required fields fail the probe.
func InterpretStatus(text string, logger zerolog.Logger) (status.Result, error) {
	root, err := ParseNode(text)
	if err != nil {
		return status.Result{}, err
	}

	motd, ok := resolveDescription(root.Get("description"))
	if !ok {
		return status.Result{}, status.NewError(status.KindFormat, "description", status.ErrEmptyDescription)
	}

	maxPlayers, ok := root.Path("players", "max").AsInt()
	if !ok {
		return status.Result{}, status.Errorf(status.KindFormat, "players.max", "required field missing")
	}
	online, ok := root.Path("players", "online").AsInt()
	if !ok {
		return status.Result{}, status.Errorf(status.KindFormat, "players.online", "required field missing")
	}
	version, ok := root.Path("version", "name").AsString()
	if !ok {
		return status.Result{}, status.Errorf(status.KindFormat, "version.name", "required field missing")
	}
	proto, _ := root.Path("version", "protocol").AsInt()

	result := status.Result{
		Motd:           motd,
		MaxPlayers:     maxPlayers,
		CurrentPlayers: online,
		Version:        version,
		Protocol:       proto,
		Sample:         resolveSample(root.Path("players", "sample"), logger),
	}

	icon, err := resolveFavicon(root.Get("favicon"))
	if err != nil {
		logger.Debug().Err(err).Msg("ignoring server icon")
	}
	result.Icon = icon

	return result, nil
}

// resolveDescription tries description.extra, then description.text, then a
// plain string description. The first non-empty result wins.
func resolveDescription(desc Node) (string, bool) {
	if s, ok := joinExtra(desc.Get("extra")); ok {
		return s, true
	}
	if s, ok := desc.Get("text").AsString(); ok && s != "" {
		return s, true
	}
	if s, ok := desc.AsString(); ok && s != "" {
		return s, true
	}
	return "", false
}

func joinExtra(extra Node) (string, bool) {
	if !extra.Exists() {
		return "", false
	}

	parts, ok := decodeComponents(extra)
	if !ok {
		return "", false
	}

	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(b.String()) != "" {
			b.WriteByte(' ')
		}
		b.WriteString(p.Text)
	}

	s := b.String()
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func decodeComponents(n Node) ([]textComponent, bool) {
	items, ok := n.AsArray()
	if !ok {
		return nil, false
	}

	parts := make([]textComponent, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			return nil, false
		}
		text, _ := item.Get("text").AsString()
		parts = append(parts, textComponent{Text: text})
	}
	return parts, true
}

func resolveSample(n Node, logger zerolog.Logger) []status.PlayerRef {
	sample := []status.PlayerRef{}
	if !n.Exists() {
		return sample
	}

	items, ok := n.AsArray()
	if !ok {
		logger.Debug().Msg("players.sample is not a list, using empty sample")
		return sample
	}

	for _, item := range items {
		if !item.IsObject() {
			logger.Debug().Msg("malformed players.sample entry, using empty sample")
			return []status.PlayerRef{}
		}
		id, okID := item.Get("id").AsString()
		name, okName := item.Get("name").AsString()
		if !okID || !okName {
			continue
		}
		sample = append(sample, status.PlayerRef{ID: id, RawName: name})
	}
	return sample
}

func resolveFavicon(n Node) (*status.Icon, error) {
	if !n.Exists() {
		return nil, nil
	}

	s, ok := n.AsString()
	if !ok {
		return nil, status.Errorf(status.KindDecodeSoft, "favicon", "favicon is not a string")
	}
	if !strings.HasPrefix(s, FaviconPrefix) {
		return nil, status.Errorf(status.KindDecodeSoft, "favicon", "unsupported favicon format")
	}

	// Some servers wrap the base64 body at 76 columns.
	body := strings.NewReplacer("\n", "", "\r", "").Replace(s[len(FaviconPrefix):])
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, status.NewError(status.KindDecodeSoft, "favicon", fmt.Errorf("failed to decode base64: %w", err))
	}

	icon, err := status.DecodeIcon(data)
	if err != nil {
		return nil, status.NewError(status.KindDecodeSoft, "favicon", err)
	}
	return icon, nil
}
