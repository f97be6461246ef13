package domain

type TrackKind string

const (
	TrackKindVideo   TrackKind = "video"
	TrackKindAudio   TrackKind = "audio"
	TrackKindUnknown TrackKind = "unknown"
)

func (k TrackKind) Valid() bool {
	return k == TrackKindVideo || k == TrackKindAudio
}

// TrackSource distinguishes screen share from camera video; they are
// separate tracks with independent state.
type TrackSource string

const (
	SourceCamera           TrackSource = "camera"
	SourceMicrophone       TrackSource = "microphone"
	SourceScreenShare      TrackSource = "screen_share"
	SourceScreenShareAudio TrackSource = "screen_share_audio"
	SourceUnknown          TrackSource = "unknown"
)

func (s TrackSource) IsScreenShare() bool {
	return s == SourceScreenShare || s == SourceScreenShareAudio
}
