package spirc

// Provider tags how a ProvidedTrack entered the queue. Grounded on
// original_source/connect/src/state/provider.rs.
type Provider string

const (
	ProviderContext     Provider = "context"
	ProviderQueue       Provider = "queue"
	ProviderAutoplay    Provider = "autoplay"
	ProviderUnavailable Provider = "unavailable"
)

// ProvidedTrack is one entry in a context/queue, carrying the provider tag
// spirc.md §4.10's queue-consumption rule and restriction derivation key
// off of.
type ProvidedTrack struct {
	URI      string
	UID      string
	Provider Provider
	Metadata map[string]string
}

func (t ProvidedTrack) IsQueue() bool    { return t.Provider == ProviderQueue }
func (t ProvidedTrack) IsAutoplay() bool { return t.Provider == ProviderAutoplay }
func (t ProvidedTrack) IsContext() bool  { return t.Provider == ProviderContext }
