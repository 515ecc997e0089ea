package tactus

// TrackID identifies a Track within a Composition.
type TrackID int

// Track holds the per-track playback settings. The notes themselves live
// in the Segments belonging to the track.
type Track struct {
	ID         TrackID
	Name       string
	Instrument InstrumentID
	Audio      bool `yaml:",omitempty"` // audio track, records to disk
	Armed      bool `yaml:",omitempty"` // record-armed
	Muted      bool `yaml:",omitempty"`
}
