package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/backend"
	"github.com/sumedhnvda/GM-uni/internal/v1/identity"
	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/metrics"
	"github.com/sumedhnvda/GM-uni/internal/v1/signaling"
	"github.com/sumedhnvda/GM-uni/internal/v1/types"
)

const (
	reconnectDelay = 3 * time.Second
	bannerTTL      = 5 * time.Second
)

// Session owns one visit to the user's community room: profile, room
// metadata, message history, the live chat stream, and the reconnect loop.
// All mutation happens under one mutex; accessors hand out copies.
type Session struct {
	api      *backend.Client
	me       *identity.Cell
	onUpdate func()

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	room           types.RoomInfo
	messages       []types.ChatMessage
	presence       map[string]struct{}
	banner         string
	bannerTimer    *time.Timer
	reconnectTimer *time.Timer
	channel        *signaling.Channel
	connected      bool
	leaving        bool
}

// NewSession creates an unjoined session. onUpdate, if non-nil, fires after
// every observable state change; it must not call back into the session
// synchronously from the same goroutine holding no lock guarantees.
func NewSession(api *backend.Client, onUpdate func()) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:      api,
		me:       &identity.Cell{},
		onUpdate: onUpdate,
		ctx:      ctx,
		cancel:   cancel,
		presence: make(map[string]struct{}),
	}
}

// Join loads identity, room, and history, then opens the chat stream.
// The order is fixed: ownership of history rows depends on the identity
// being stored before history is marked, and the stream needs the room id.
func (s *Session) Join(ctx context.Context) error {
	user, err := s.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	s.me.Store(user)

	room, err := s.api.MyRoom(ctx)
	if err != nil {
		return fmt.Errorf("failed to load community room: %w", err)
	}

	history, err := s.api.Messages(ctx, room.RoomID)
	if err != nil {
		return fmt.Errorf("failed to load message history: %w", err)
	}
	for i := range history {
		history[i].IsOwn = history[i].UserEmail == user.Email
		history[i].MediaURL = s.api.ResolveMediaURL(history[i].MediaURL)
		if history[i].Status == "" {
			history[i].Status = types.StatusSent
		}
	}

	s.mu.Lock()
	s.room = room
	s.messages = history
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		// History is usable without the stream; fall into the reconnect
		// loop instead of failing the join.
		logging.Warn(ctx, "initial chat stream connect failed, will retry",
			zap.String("roomId", string(room.RoomID)), zap.Error(err))
		s.scheduleReconnect()
	}
	s.notify()
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.room.RoomID
	s.mu.Unlock()

	wsURL := signaling.DeriveWebSocketURL(s.api.BaseURL(), "/api/ws/community/"+string(roomID), s.api.Token())
	ch, err := signaling.Dial(ctx, wsURL, s.handleFrame, s.handleClose)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.leaving {
		// Leave landed while the dial was in flight; the fresh socket must
		// not outlive the session.
		s.mu.Unlock()
		ch.Close()
		return nil
	}
	if !ch.IsOpen() {
		// Died between dial and registration. Its close event was ignored
		// (not yet s.channel), so report failure and let the caller retry.
		s.mu.Unlock()
		return fmt.Errorf("chat stream closed during connect")
	}
	s.channel = ch
	s.connected = true
	s.mu.Unlock()
	logging.Info(ctx, "chat stream connected", zap.String("roomId", string(roomID)))
	return nil
}

// Room returns the joined room's metadata.
func (s *Session) Room() types.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns a copy of the current history in display order.
func (s *Session) Messages() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Banner returns the active moderation banner text, if any.
func (s *Session) Banner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner, s.banner != ""
}

// Connected reports whether the chat stream is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Presence returns the display names currently announced in the room.
func (s *Session) Presence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.presence))
	for name := range s.presence {
		out = append(out, name)
	}
	return out
}

// SendText validates and transmits a text message, appending a provisional
// entry immediately. The entry is promoted in place when the server echo
// arrives carrying the same client id. A no-op while the stream is down:
// no provisional entry, nothing transmitted.
func (s *Session) SendText(content string) error {
	if err := types.ValidateChatContent(content); err != nil {
		return err
	}
	user, ok := s.me.Load()
	if !ok {
		return fmt.Errorf("cannot send before joining")
	}

	clientID := types.ClientIDType(uuid.NewString())
	provisional := types.ChatMessage{
		ID:          "local-" + string(clientID),
		UserEmail:   user.Email,
		UserName:    user.FullName,
		UserPicture: user.Picture,
		Content:     content,
		MessageType: types.MessageTypeText,
		CreatedAt:   time.Now(),
		IsOwn:       true,
		ClientID:    clientID,
		Status:      types.StatusSending,
	}

	s.mu.Lock()
	ch := s.channel
	if ch == nil || !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("chat stream is not open")
	}
	s.messages = append(s.messages, provisional)
	s.mu.Unlock()

	ch.Send(signaling.NewChatSend(content, types.MessageTypeText, clientID, ""))
	metrics.ChatMessages.WithLabelValues("outbound", string(types.MessageTypeText)).Inc()
	s.notify()
	return nil
}

// SendMedia validates, uploads, and announces a media message. There is no
// provisional entry: the message appears only when the server broadcasts it,
// because the media URL does not exist until the upload completes.
func (s *Session) SendMedia(ctx context.Context, filename, mimeType string, size int64, r io.Reader) error {
	kind, err := types.ValidateMediaFile(mimeType, size)
	if err != nil {
		return err
	}
	if _, ok := s.me.Load(); !ok {
		return fmt.Errorf("cannot send before joining")
	}
	s.mu.Lock()
	ch := s.channel
	connected := s.connected
	s.mu.Unlock()
	if ch == nil || !connected {
		return fmt.Errorf("chat stream is not open")
	}

	mediaURL, err := s.api.Upload(ctx, filename, mimeType, r)
	if err != nil {
		return fmt.Errorf("media upload failed: %w", err)
	}

	clientID := types.ClientIDType(uuid.NewString())
	ch.Send(signaling.NewChatSend(filename, kind, clientID, mediaURL))
	metrics.ChatMessages.WithLabelValues("outbound", string(kind)).Inc()
	return nil
}

// Leave tears the session down: cancels any pending reconnect, closes the
// stream, and stops the banner timer. Safe to call more than once.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.leaving {
		s.mu.Unlock()
		return
	}
	s.leaving = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.bannerTimer != nil {
		s.bannerTimer.Stop()
		s.bannerTimer = nil
	}
	ch := s.channel
	s.channel = nil
	s.connected = false
	s.mu.Unlock()

	s.cancel()
	if ch != nil {
		ch.Close()
	}
	logging.Info(context.Background(), "left community room", zap.String("roomId", string(s.Room().RoomID)))
}

// handleFrame decodes and dispatches one inbound frame. Unknown event types
// are logged and skipped; they never terminate the stream.
func (s *Session) handleFrame(data []byte) {
	ev, err := signaling.DecodeChatEvent(data)
	if err != nil {
		logging.Warn(s.ctx, "dropping undecodable chat frame", zap.Error(err))
		return
	}

	switch ev := ev.(type) {
	case signaling.NewMessageEvent:
		s.applyNewMessage(ev.Message)
	case signaling.ModerationWarningEvent:
		s.applyModerationWarning(ev)
	case signaling.MessageDeletedEvent:
		s.applyDeletion(ev.MessageID)
	case signaling.UserJoinedEvent:
		s.applyPresence(ev.Name, true)
	case signaling.UserLeftEvent:
		s.applyPresence(ev.Name, false)
	}
	s.notify()
}

// applyNewMessage reconciles a broadcast message against the local history.
// A matching client id promotes the provisional entry in place, keeping its
// position; anything else appends.
func (s *Session) applyNewMessage(msg types.ChatMessage) {
	user, _ := s.me.Load()
	msg.IsOwn = msg.UserEmail == user.Email
	msg.MediaURL = s.api.ResolveMediaURL(msg.MediaURL)
	msg.Status = types.StatusSent

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ClientID != "" {
		for i := range s.messages {
			if s.messages[i].ClientID == msg.ClientID && s.messages[i].Status == types.StatusSending {
				msg.IsOwn = true
				s.messages[i] = msg
				metrics.ChatMessages.WithLabelValues("inbound", string(msg.MessageType)).Inc()
				return
			}
		}
	}
	s.messages = append(s.messages, msg)
	metrics.ChatMessages.WithLabelValues("inbound", string(msg.MessageType)).Inc()
}

// applyModerationWarning shows the banner and retracts the rejected
// provisional entry when the warning carries its client id. A warning
// without a client id, or one naming an unknown id, only shows the banner.
func (s *Session) applyModerationWarning(ev signaling.ModerationWarningEvent) {
	metrics.ModerationWarnings.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.banner = ev.Reason
	if s.banner == "" {
		s.banner = "Your message was not allowed."
	}
	if s.bannerTimer != nil {
		s.bannerTimer.Stop()
	}
	s.bannerTimer = time.AfterFunc(bannerTTL, func() {
		s.mu.Lock()
		s.banner = ""
		s.mu.Unlock()
		s.notify()
	})

	if ev.ClientID == "" {
		return
	}
	for i := range s.messages {
		if s.messages[i].ClientID == ev.ClientID && s.messages[i].Status == types.StatusSending {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// applyDeletion redacts a message in place. The row keeps its position so
// the surrounding conversation stays readable.
func (s *Session) applyDeletion(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Content = types.DeletedPlaceholder
			s.messages[i].MediaURL = ""
			s.messages[i].IsDeleted = true
			return
		}
	}
}

// applyPresence maintains the cosmetic online set, keyed by display name.
func (s *Session) applyPresence(name string, joined bool) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if joined {
		s.presence[name] = struct{}{}
	} else {
		delete(s.presence, name)
	}
}

// handleClose runs when the stream dies. Deliberate leaves stay closed;
// anything else schedules a reconnect. Close events from channels the
// session no longer owns (replaced by a reconnect, or closed by Leave) are
// ignored so they cannot clobber the live connection state.
func (s *Session) handleClose(ch *signaling.Channel, err error) {
	s.mu.Lock()
	if ch != s.channel {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.channel = nil
	leaving := s.leaving
	s.mu.Unlock()

	if leaving {
		return
	}
	if err != nil {
		logging.Warn(s.ctx, "chat stream closed unexpectedly", zap.Error(err))
	}
	s.scheduleReconnect()
	s.notify()
}

// scheduleReconnect arms a single cancellable timer. Fixed delay, unlimited
// attempts; the timer handle lets Leave stop the loop cleanly.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaving {
		return
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(reconnectDelay, func() {
		s.mu.Lock()
		if s.leaving {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		metrics.SignalingReconnects.Inc()
		if err := s.connect(s.ctx); err != nil {
			logging.Warn(s.ctx, "chat reconnect failed", zap.Error(err))
			s.scheduleReconnect()
			return
		}
		s.notify()
	})
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
