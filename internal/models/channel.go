// Package models defines the shared data types of the mosaic service:
// catalog channels, layout configurations, and the domain error taxonomy.
package models

// Channel is one entry of the channel catalog. Channels are immutable
// once constructed; the catalog is replaced atomically on refresh.
type Channel struct {
	// ID is the tvg-id playlist attribute, or a minted ULID when the
	// playlist entry carries none.
	ID string `json:"id"`

	// DisplayName is the text after the comma of the EXTINF line.
	DisplayName string `json:"display_name"`

	// LogoURL is the tvg-logo attribute, if present.
	LogoURL string `json:"logo_url,omitempty"`

	// StreamURL is the playable stream location.
	StreamURL string `json:"stream_url"`

	// Group is the group-title attribute, if present.
	Group string `json:"group,omitempty"`

	// ChannelNumber is the tvg-chno attribute, if present.
	ChannelNumber string `json:"channel_number,omitempty"`
}
