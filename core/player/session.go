package player

// Session is the playback state owned by one controller. Transitions are
// pure: each returns a new Session and never mutates the receiver's slices.
//
// CurrentIndex indexes the active sequence: ShuffledPlaylist when
// IsShuffled, otherwise Playlist.
type Session struct {
	CurrentTrack     *Track     `json:"currentTrack"`
	IsPlaying        bool       `json:"isPlaying"`
	Playlist         []Track    `json:"playlist"`
	CurrentIndex     int        `json:"currentIndex"`
	IsShuffled       bool       `json:"isShuffled"`
	ShuffledPlaylist []Track    `json:"shuffledPlaylist,omitempty"`
	Repeat           RepeatMode `json:"repeatMode"`
}

// NewSession returns the neutral state a session starts in.
func NewSession() Session {
	return Session{Repeat: RepeatNone}
}

// Active returns the sequence that currently governs navigation.
func (s Session) Active() []Track {
	if s.IsShuffled {
		return s.ShuffledPlaylist
	}
	return s.Playlist
}

// CurrentID returns the id of the current track, or "".
func (s Session) CurrentID() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

// Play selects track. A nil list keeps the current playlist. A track missing
// from the list is appended to it. Selecting the current track again flips
// IsPlaying instead of restarting it; started reports whether the track
// should be (re)started from the beginning.
func (s Session) Play(track Track, list []Track, rng Rand) (next Session, started bool) {
	if list == nil {
		list = s.Playlist
	}

	playlist := make([]Track, len(list), len(list)+1)
	copy(playlist, list)
	idx := indexOf(playlist, track.ID)
	if idx < 0 {
		playlist = append(playlist, track)
		idx = len(playlist) - 1
	}

	next = s
	if next.IsShuffled {
		if sameOrder(s.Playlist, playlist) && indexOf(s.ShuffledPlaylist, track.ID) >= 0 {
			next.CurrentIndex = indexOf(s.ShuffledPlaylist, track.ID)
		} else {
			next.ShuffledPlaylist = shuffleAround(playlist, idx, rng)
			next.CurrentIndex = 0
		}
	} else {
		next.CurrentIndex = idx
	}
	next.Playlist = playlist

	if s.CurrentTrack != nil && s.CurrentTrack.ID == track.ID {
		next.IsPlaying = !s.IsPlaying
		return next, false
	}

	current := playlist[idx]
	next.CurrentTrack = &current
	next.IsPlaying = true
	return next, true
}

// Toggle flips IsPlaying. Without a current track it is a no-op.
func (s Session) Toggle() Session {
	if s.CurrentTrack == nil {
		return s
	}
	s.IsPlaying = !s.IsPlaying
	return s
}

// ShuffleToggle engages or releases shuffle. Engaging moves the current
// track to the head of a freshly shuffled order; releasing re-finds the
// current track in the original playlist so playback resumes in place.
func (s Session) ShuffleToggle(rng Rand) Session {
	if s.IsShuffled {
		s.IsShuffled = false
		s.ShuffledPlaylist = nil
		if i := indexOf(s.Playlist, s.CurrentID()); i >= 0 {
			s.CurrentIndex = i
		} else {
			s.CurrentIndex = clampIndex(s.CurrentIndex, len(s.Playlist))
		}
		return s
	}

	s.IsShuffled = true
	if len(s.Playlist) == 0 {
		s.ShuffledPlaylist = nil
		s.CurrentIndex = 0
		return s
	}
	current := indexOf(s.Playlist, s.CurrentID())
	if current < 0 {
		current = clampIndex(s.CurrentIndex, len(s.Playlist))
	}
	s.ShuffledPlaylist = shuffleAround(s.Playlist, current, rng)
	s.CurrentIndex = 0
	return s
}

// RepeatCycle advances none → all → one → none.
func (s Session) RepeatCycle() Session {
	s.Repeat = s.Repeat.Next()
	return s
}

// Next advances to the following track. At the end of the sequence with
// repeat none playback stops on the last track.
func (s Session) Next() (next Session, started bool) {
	active := s.Active()
	if len(s.Playlist) == 0 || len(active) == 0 {
		return s, false
	}

	last := len(active) - 1
	if s.CurrentIndex >= last && s.Repeat == RepeatNone {
		s.IsPlaying = false
		return s, false
	}
	return s.moveTo(active, (s.CurrentIndex+1)%len(active)), true
}

// Previous steps back one track, always wrapping from the first to the last.
func (s Session) Previous() (next Session, started bool) {
	active := s.Active()
	if len(s.Playlist) == 0 || len(active) == 0 {
		return s, false
	}

	prev := s.CurrentIndex - 1
	if s.CurrentIndex <= 0 {
		prev = len(active) - 1
	}
	return s.moveTo(active, prev), true
}

// Ended applies the natural end of the current track.
func (s Session) Ended() (next Session, started bool) {
	if s.CurrentTrack == nil {
		return s, false
	}
	if s.Repeat == RepeatOne {
		s.IsPlaying = true
		return s, true
	}

	active := s.Active()
	if len(active) == 0 {
		s.IsPlaying = false
		return s, false
	}
	if s.CurrentIndex >= len(active)-1 {
		if s.Repeat == RepeatAll {
			return s.moveTo(active, 0), true
		}
		s.IsPlaying = false
		return s, false
	}
	return s.Next()
}

func (s Session) moveTo(active []Track, i int) Session {
	track := active[i]
	s.CurrentIndex = i
	s.CurrentTrack = &track
	s.IsPlaying = true
	return s
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func sameOrder(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
