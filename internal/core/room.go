package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

const DefaultHistorySlice = 50

// Caps are the per-room tuning knobs.
type Caps struct {
	HistoryCap   int
	ActivityCap  int
	HistorySlice int
	TypingTTL    time.Duration
}

func DefaultCaps() Caps {
	return Caps{
		HistoryCap:   DefaultHistoryCap,
		ActivityCap:  DefaultActivityCap,
		HistorySlice: DefaultHistorySlice,
		TypingTTL:    DefaultTypingTTL,
	}
}

type connEntry struct {
	part     domain.Participant
	sender   Sender
	channels map[domain.ChannelID]struct{}
}

// RoomSession is the single authority over one room's shared state: the
// presence set, typing tracker, channel histories, meeting registry and
// activity log. All mutation is serialized behind one lock; fan-out happens
// outside the lock on a snapshot of targets, so a connection joining
// mid-broadcast may or may not see that event but never a torn one.
type RoomSession struct {
	room   domain.Room
	caps   Caps
	policy Policy

	mu       sync.RWMutex
	conns    map[ConnID]*connEntry
	presence *PresenceSet
	channels map[domain.ChannelID]*ChannelHistory
	meetings *MeetingRegistry
	activity *ActivityLog
	typing   *TypingTracker
}

func NewRoomSession(id domain.RoomID, caps Caps, policy Policy) *RoomSession {
	r := &RoomSession{
		room:     domain.Room{ID: id},
		caps:     caps,
		policy:   policy,
		conns:    make(map[ConnID]*connEntry),
		presence: NewPresenceSet(),
		channels: make(map[domain.ChannelID]*ChannelHistory),
		meetings: NewMeetingRegistry(),
		activity: NewActivityLog(caps.ActivityCap),
	}
	r.typing = NewTypingTracker(caps.TypingTTL, r.onTypingExpired)
	return r
}

func (r *RoomSession) ID() domain.RoomID { return r.room.ID }

func (r *RoomSession) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presence.Len()
}

func (r *RoomSession) Members() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

// Close cancels the typing timers. Called by the registry on eviction.
func (r *RoomSession) Close() {
	r.typing.Close()
}

// Attach registers a connection, broadcasts user_joined to everyone else
// and unicasts the connected ack plus the current member list back to the
// new connection. The presence set is the membership authority: a re-attach
// of an already-present connection replaces its sender without a second
// join broadcast.
func (r *RoomSession) Attach(p domain.Participant, s Sender) {
	r.mu.Lock()
	joined := r.presence.Join(p.ConnID)
	r.conns[p.ConnID] = &connEntry{
		part:     p,
		sender:   s,
		channels: make(map[domain.ChannelID]struct{}),
	}
	at := time.Now().UTC()
	var others []Target
	if joined {
		others = r.targetsExceptLocked(p.ConnID)
	}
	members := r.membersLocked()
	r.mu.Unlock()

	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(p.ConnID)).Msg("connection attached")

	if joined {
		r.fanout(others, protocol.Presence{
			Type:   protocol.EventUserJoined,
			ConnID: p.ConnID,
			Name:   p.DisplayName,
			At:     at,
		})
	}
	r.unicast(p.ConnID, s, protocol.Connected{
		Type:   protocol.EventConnected,
		RoomID: r.room.ID,
		ConnID: p.ConnID,
	})
	r.unicast(p.ConnID, s, protocol.RoomState{
		Type:    protocol.EventRoomState,
		RoomID:  r.room.ID,
		Members: members,
		Count:   len(members),
	})
}

// Detach runs the unconditional cleanup path: presence, channel membership
// and typing entries for the connection go away even on an abrupt close.
func (r *RoomSession) Detach(conn ConnID) {
	r.mu.Lock()
	if !r.presence.Leave(conn) {
		r.mu.Unlock()
		return
	}
	// conns moves in lockstep with the presence set under the room lock.
	e := r.conns[conn]
	delete(r.conns, conn)
	at := time.Now().UTC()
	user := r.typingIdentityLocked(e.part)
	userStillHere := false
	for _, other := range r.conns {
		if r.typingIdentityLocked(other.part) == user {
			userStillHere = true
			break
		}
	}
	rest := r.targetsLocked()
	r.mu.Unlock()

	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(conn)).Msg("connection detached")

	r.fanout(rest, protocol.Presence{
		Type:   protocol.EventUserLeft,
		ConnID: conn,
		Name:   e.part.DisplayName,
		At:     at,
	})

	// The expiry timer is the backstop; explicit cleanup clears sooner.
	if !userStillHere {
		for _, ch := range r.typing.StopUser(user) {
			r.broadcastTyping(user, ch, false)
		}
	}
}

// Authenticate upgrades a connection's identity once the authorizer has
// resolved its bearer token.
func (r *RoomSession) Authenticate(conn ConnID, user domain.UserID, displayName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok {
		return false
	}
	e.part.UserID = user
	if displayName != "" {
		e.part.DisplayName = displayName
	}
	return true
}

// SendMessage validates, appends to the channel's bounded history and
// broadcasts to every connection in the room, sender included, so clients
// can reconcile optimistic sends.
func (r *RoomSession) SendMessage(conn ConnID, req protocol.SendMessage) error {
	r.mu.Lock()
	e, ok := r.conns[conn]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	m, err := domain.NewMessage(req.ChannelID, conn, e.part.DisplayName, req.Content, req.ReplyToID, req.Attachments)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.historyLocked(m.ChannelID).Append(m)
	all := r.targetsLocked()
	snap := *m
	r.mu.Unlock()

	r.fanout(all, protocol.MessageFrame{Type: protocol.EventMessage, Message: snap})
	return nil
}

// TypingStart delegates to the tracker and broadcasts to all-except-sender.
// The typing user never receives their own echo.
func (r *RoomSession) TypingStart(conn ConnID, ch domain.ChannelID) {
	if ch == "" {
		ch = domain.DefaultChannel
	}
	user, ok := r.typingIdentity(conn)
	if !ok {
		return
	}
	r.typing.Start(user, ch)
	r.broadcastTyping(user, ch, true)
}

func (r *RoomSession) TypingStop(conn ConnID, ch domain.ChannelID) {
	if ch == "" {
		ch = domain.DefaultChannel
	}
	user, ok := r.typingIdentity(conn)
	if !ok {
		return
	}
	r.typing.Stop(user, ch)
	r.broadcastTyping(user, ch, false)
}

// Activity appends to the capped activity log and broadcasts only when the
// event explicitly asks for it.
func (r *RoomSession) Activity(conn ConnID, req protocol.UserActivity) {
	r.mu.Lock()
	if _, ok := r.conns[conn]; !ok {
		r.mu.Unlock()
		return
	}
	entry := domain.ActivityEntry{
		ConnID:    conn,
		Kind:      req.Kind,
		Detail:    req.Detail,
		CreatedAt: time.Now().UTC(),
	}
	r.activity.Append(entry)
	var others []Target
	if req.Broadcast {
		others = r.targetsExceptLocked(conn)
	}
	r.mu.Unlock()

	if req.Broadcast {
		r.fanout(others, protocol.Activity{Type: protocol.EventActivity, Entry: entry})
	}
}

// JoinChannel records membership and replies to the requesting connection
// only with the most recent history slice. Point-to-point, not a broadcast.
func (r *RoomSession) JoinChannel(conn ConnID, ch domain.ChannelID, limit int) {
	if ch == "" {
		ch = domain.DefaultChannel
	}
	if limit <= 0 {
		limit = r.caps.HistorySlice
	}
	r.mu.Lock()
	e, ok := r.conns[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.channels[ch] = struct{}{}
	var slice []domain.Message
	if h, ok := r.channels[ch]; ok {
		slice = h.Recent(limit)
	} else {
		slice = []domain.Message{}
	}
	sender := e.sender
	r.mu.Unlock()

	r.unicast(conn, sender, protocol.ChannelHistory{
		Type:      protocol.EventChannelHistory,
		ChannelID: ch,
		Messages:  slice,
	})
}

// LeaveChannel removes the membership record. No broadcast.
func (r *RoomSession) LeaveChannel(conn ConnID, ch domain.ChannelID) {
	if ch == "" {
		ch = domain.DefaultChannel
	}
	r.mu.Lock()
	if e, ok := r.conns[conn]; ok {
		delete(e.channels, ch)
	}
	r.mu.Unlock()
}

func (r *RoomSession) CreateMeeting(conn ConnID, req protocol.CreateMeeting) {
	r.mu.Lock()
	if _, ok := r.conns[conn]; !ok {
		r.mu.Unlock()
		return
	}
	m := domain.NewMeeting(req.Title, req.Description, req.ScheduledFor, conn)
	r.meetings.Add(m)
	all := r.targetsLocked()
	snap := *m
	r.mu.Unlock()

	r.fanout(all, protocol.MeetingFrame{Type: protocol.EventMeetingCreated, Meeting: snap})
}

func (r *RoomSession) JoinMeeting(conn ConnID, id domain.MeetingID) {
	r.mu.Lock()
	if _, ok := r.conns[conn]; !ok {
		r.mu.Unlock()
		return
	}
	snap, ok := r.meetings.Join(id, conn)
	var all []Target
	if ok {
		all = r.targetsLocked()
	}
	r.mu.Unlock()

	if !ok {
		log.Warn().Str("module", "core.room").Str("room", string(r.room.ID)).Str("meeting", string(id)).Msg("join on unknown meeting")
		return
	}
	r.fanout(all, protocol.MeetingFrame{Type: protocol.EventMeetingUpdated, Meeting: snap})
}

// MeetingAction drives the state machine. A rejected transition broadcasts
// nothing; the sender alone gets a no-op acknowledgement with the current
// state, since its local view may be stale by design.
func (r *RoomSession) MeetingAction(conn ConnID, id domain.MeetingID, action domain.MeetingAction) {
	r.mu.Lock()
	e, ok := r.conns[conn]
	if !ok {
		r.mu.Unlock()
		return
	}
	snap, applied, found := r.meetings.Apply(id, action)
	var all []Target
	if applied {
		all = r.targetsLocked()
	}
	sender := e.sender
	r.mu.Unlock()

	if !found {
		log.Warn().Str("module", "core.room").Str("room", string(r.room.ID)).Str("meeting", string(id)).Msg("action on unknown meeting")
		return
	}
	frame := protocol.MeetingFrame{Type: protocol.EventMeetingUpdated, Meeting: snap}
	if applied {
		r.fanout(all, frame)
		return
	}
	log.Debug().Str("module", "core.room").Str("meeting", string(id)).Str("action", string(action)).Str("status", string(snap.Status)).Msg("transition rejected")
	r.unicast(conn, sender, frame)
}

// AddReaction is add-only; a duplicate reaction from the same connection
// broadcasts nothing.
func (r *RoomSession) AddReaction(conn ConnID, req protocol.AddReaction) {
	ch := req.ChannelID
	if ch == "" {
		ch = domain.DefaultChannel
	}
	r.mu.Lock()
	if _, ok := r.conns[conn]; !ok {
		r.mu.Unlock()
		return
	}
	h, ok := r.channels[ch]
	if !ok {
		r.mu.Unlock()
		return
	}
	m, ok := h.Find(req.MessageID)
	if !ok {
		r.mu.Unlock()
		return
	}
	added := m.React(req.Emoji, conn)
	var all []Target
	if added {
		all = r.targetsLocked()
	}
	r.mu.Unlock()

	if !added {
		return
	}
	r.fanout(all, protocol.MessageReaction{
		Type:      protocol.EventMessageReaction,
		MessageID: req.MessageID,
		ChannelID: ch,
		Emoji:     req.Emoji,
		ConnID:    conn,
	})
}

func (r *RoomSession) ActivityEntries() []domain.ActivityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activity.Entries()
}

func (r *RoomSession) Meetings() []domain.Meeting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meetings.List()
}

// --- internals ---

// typingIdentity maps a connection to the key the typing tracker uses.
// Unauthenticated connections fall back to their connection id so two
// anonymous participants never alias each other.
func (r *RoomSession) typingIdentity(conn ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn]
	if !ok {
		return "", false
	}
	return r.typingIdentityLocked(e.part), true
}

func (r *RoomSession) typingIdentityLocked(p domain.Participant) domain.UserID {
	if p.UserID != "" {
		return p.UserID
	}
	return domain.UserID(p.ConnID)
}

// membersLocked derives the roster from the presence set, the membership
// authority, looking participant data up in conns.
func (r *RoomSession) membersLocked() []domain.Participant {
	out := make([]domain.Participant, 0, r.presence.Len())
	for _, id := range r.presence.List() {
		if e, ok := r.conns[id]; ok {
			out = append(out, e.part)
		}
	}
	return out
}

func (r *RoomSession) historyLocked(ch domain.ChannelID) *ChannelHistory {
	h, ok := r.channels[ch]
	if !ok {
		h = NewChannelHistory(r.caps.HistoryCap)
		r.channels[ch] = h
	}
	return h
}

func (r *RoomSession) onTypingExpired(user domain.UserID, ch domain.ChannelID) {
	r.broadcastTyping(user, ch, false)
}

func (r *RoomSession) broadcastTyping(user domain.UserID, ch domain.ChannelID, isTyping bool) {
	r.mu.RLock()
	targets := make([]Target, 0, len(r.conns))
	for id, e := range r.conns {
		if r.typingIdentityLocked(e.part) == user {
			continue
		}
		targets = append(targets, Target{Conn: id, Sender: e.sender})
	}
	r.mu.RUnlock()

	r.fanout(targets, protocol.Typing{
		Type:      protocol.EventTyping,
		UserID:    user,
		ChannelID: ch,
		IsTyping:  isTyping,
	})
}

func (r *RoomSession) targetsLocked() []Target {
	out := make([]Target, 0, len(r.conns))
	for id, e := range r.conns {
		out = append(out, Target{Conn: id, Sender: e.sender})
	}
	return out
}

func (r *RoomSession) targetsExceptLocked(skip ConnID) []Target {
	out := make([]Target, 0, len(r.conns))
	for id, e := range r.conns {
		if id == skip {
			continue
		}
		out = append(out, Target{Conn: id, Sender: e.sender})
	}
	return out
}

func (r *RoomSession) fanout(targets []Target, v any) PublishResult {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("fanout marshal")
		return PublishResult{}
	}
	res := PublishResult{}
	for _, t := range targets {
		if err := t.Sender.TrySend(Frame(b)); err != nil {
			res.Dropped = append(res.Dropped, t)
			continue
		}
		res.SentTo++
	}
	if len(res.Dropped) > 0 && r.policy != nil {
		for _, t := range res.Dropped {
			if r.policy.OnBackPressure(r, t.Conn) == KickMember {
				// Closing the sender makes the adapter's read loop exit,
				// which runs the normal Detach cleanup path.
				t.Sender.Close()
			}
		}
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("fanout")
	return res
}

func (r *RoomSession) unicast(conn ConnID, s Sender, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("unicast marshal")
		return
	}
	if err := s.TrySend(Frame(b)); err != nil {
		log.Warn().Str("module", "core.room").Str("conn", string(conn)).Msg("unicast dropped")
	}
}
