package player

// StreamLocator returns the stream a track should play: the full-quality
// premium stream when the track is unlocked and one exists, otherwise the
// preview stream.
func StreamLocator(t Track, unlocked bool) string {
	if unlocked && t.PremiumAudio != "" {
		return t.PremiumAudio
	}
	return t.MediaURL
}
