package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/tonk-sync/tonk/internal/document"
	"github.com/tonk-sync/tonk/internal/resolver"
	"github.com/tonk-sync/tonk/internal/transport"
)

// State is where a Session sits in the Handshake -> Active -> Closed
// lifecycle.
type State int

const (
	StateHandshake State = iota
	StateActive
	StateClosed
)

// Direction records which side of the connection this session is, which
// influences only who speaks Hello first.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

// sendQueueSize bounds the outgoing message buffer. Once it fills,
// forwarders of local changes block on send rather than drop changes —
// the backpressure the spec requires.
const sendQueueSize = 256

// Session is a per-connection instance of SyncProtocol, exchanging
// changes for every document store knows about with exactly one remote
// peer. An Interest message from the remote is recorded but does not
// narrow which documents are announced or forwarded.
type Session struct {
	transport transport.Transport
	store     *document.Store
	direction Direction

	mu         sync.Mutex
	state      State
	remotePeer string
	interest   map[document.ID]struct{} // nil means "everything"

	outbox chan Message
	done   chan struct{}
	cancel []func()
}

// NewSession wraps a transport as a SyncProtocol session against store.
func NewSession(t transport.Transport, store *document.Store, direction Direction) *Session {
	return &Session{
		transport: t,
		store:     store,
		direction: direction,
		outbox:    make(chan Message, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Run drives the session to completion: handshake, then the active
// exchange of Have/Request/Changes until the context is canceled, Bye is
// received, or the transport errors. It always returns once the session
// is Closed.
func (s *Session) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.writeLoop(ctx)
	}()

	if err := s.handshake(ctx); err != nil {
		s.closeLocked()
		stop()
		wg.Wait()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.readLoop(ctx)
	}()

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	if err := s.announceHaves(ctx); err != nil {
		s.closeLocked()
		stop()
		wg.Wait()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	s.closeLocked()
	stop()
	wg.Wait()

	for _, c := range s.subscriberCancels() {
		c()
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (s *Session) subscriberCancels() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cancel
	s.cancel = nil
	return out
}

func (s *Session) closeLocked() {
	s.mu.Lock()
	already := s.state == StateClosed
	s.state = StateClosed
	s.mu.Unlock()
	if !already {
		_ = s.transport.Close()
		close(s.done)
	}
}

func (s *Session) handshake(ctx context.Context) error {
	localHello := Message{Kind: KindHello, Hello: &HelloPayload{
		PeerID:            s.store.PeerID(),
		SupportedVersions: []int{ProtocolVersion},
	}}

	if s.direction == DirectionOutgoing {
		if err := s.send(ctx, localHello); err != nil {
			return fmt.Errorf("sync: send hello: %w", err)
		}
		return s.awaitHello(ctx)
	}

	if err := s.awaitHello(ctx); err != nil {
		return err
	}
	return s.send(ctx, localHello)
}

func (s *Session) awaitHello(ctx context.Context) error {
	msg, err := s.receive(ctx)
	if err != nil {
		return fmt.Errorf("sync: await hello: %w", err)
	}
	if msg.Kind != KindHello || msg.Hello == nil {
		return fmt.Errorf("sync: expected Hello, got kind %d", msg.Kind)
	}
	supported := false
	for _, v := range msg.Hello.SupportedVersions {
		if v == ProtocolVersion {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("sync: peer %s supports no compatible protocol version", msg.Hello.PeerID)
	}

	s.mu.Lock()
	s.remotePeer = msg.Hello.PeerID
	s.mu.Unlock()
	return nil
}

// announceHaves sends a Have for every document this store currently
// knows about, whatever Interest the remote has declared.
func (s *Session) announceHaves(ctx context.Context) error {
	for _, id := range s.store.KnownIDs() {
		h, ok, err := s.store.Find(ctx, id)
		if err != nil || !ok {
			continue
		}
		if err := s.send(ctx, Message{Kind: KindHave, Have: &HavePayload{
			DocID:        string(id),
			ChangeHashes: h.Hashes(),
		}}); err != nil {
			return err
		}
		s.watchDocument(ctx, h)
	}
	return nil
}

// watchDocument subscribes to a document's future changes and forwards
// each one as a Changes message, so the peer stays live-synced after the
// initial catch-up exchange.
func (s *Session) watchDocument(ctx context.Context, h *document.Handle) {
	events, cancelSub := h.Changes(sendQueueSize)
	s.mu.Lock()
	s.cancel = append(s.cancel, cancelSub)
	s.mu.Unlock()

	go func() {
		sent := make(map[string]struct{})
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				var batch [][]byte
				for _, hash := range h.Hashes() {
					if _, done := sent[hash]; done {
						continue
					}
					sent[hash] = struct{}{}
					for _, ch := range h.ChangesByHash([]string{hash}) {
						if enc, err := cbor.Marshal(ch); err == nil {
							batch = append(batch, enc)
						}
					}
				}
				if len(batch) == 0 {
					continue
				}
				_ = s.send(ctx, Message{Kind: KindChanges, Changes: &ChangesPayload{
					DocID:       string(h.ID()),
					ChangeBytes: batch,
				}})
			}
		}
	}()
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		msg, err := s.receive(ctx)
		if err != nil {
			return err
		}
		if err := s.handle(ctx, msg); err != nil {
			return err
		}
		s.mu.Lock()
		closed := s.state == StateClosed
		s.mu.Unlock()
		if closed {
			return nil
		}
	}
}

func (s *Session) handle(ctx context.Context, msg Message) error {
	switch msg.Kind {
	case KindInterest:
		if msg.Interest == nil || len(msg.Interest.DocIDs) == 0 {
			return nil
		}
		s.mu.Lock()
		s.interest = make(map[document.ID]struct{}, len(msg.Interest.DocIDs))
		for _, id := range msg.Interest.DocIDs {
			s.interest[document.ID(id)] = struct{}{}
		}
		s.mu.Unlock()
		return nil

	case KindHave:
		return s.handleHave(ctx, msg.Have)

	case KindRequest:
		return s.handleRequest(ctx, msg.Request)

	case KindChanges:
		return s.handleChanges(ctx, msg.Changes)

	case KindBye:
		s.closeLocked()
		return nil

	default:
		return fmt.Errorf("sync: unexpected message kind %d in Active state", msg.Kind)
	}
}

func (s *Session) handleHave(ctx context.Context, have *HavePayload) error {
	if have == nil {
		return nil
	}
	id := document.ID(have.DocID)
	h, ok, err := s.store.Find(ctx, id)

	var localHashes map[string]struct{}
	if err == nil && ok {
		hs := h.Hashes()
		localHashes = make(map[string]struct{}, len(hs))
		for _, hh := range hs {
			localHashes[hh] = struct{}{}
		}
	}

	var missing []string
	for _, remoteHash := range have.ChangeHashes {
		if _, known := localHashes[remoteHash]; !known {
			missing = append(missing, remoteHash)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return s.send(ctx, Message{Kind: KindRequest, Request: &RequestPayload{
		DocID:         have.DocID,
		MissingHashes: missing,
	}})
}

func (s *Session) handleRequest(ctx context.Context, req *RequestPayload) error {
	if req == nil {
		return nil
	}
	id := document.ID(req.DocID)
	h, ok, err := s.store.Find(ctx, id)
	if err != nil || !ok {
		return nil
	}

	changes := h.ChangesByHash(req.MissingHashes)
	if len(changes) == 0 {
		return nil
	}
	payload := make([][]byte, 0, len(changes))
	for _, ch := range changes {
		enc, err := cbor.Marshal(ch)
		if err != nil {
			continue
		}
		payload = append(payload, enc)
	}
	return s.send(ctx, Message{Kind: KindChanges, Changes: &ChangesPayload{
		DocID:       req.DocID,
		ChangeBytes: payload,
	}})
}

func (s *Session) handleChanges(ctx context.Context, payload *ChangesPayload) error {
	if payload == nil {
		return nil
	}
	id := document.ID(payload.DocID)

	for _, enc := range payload.ChangeBytes {
		var ch resolver.Change
		if err := cbor.Unmarshal(enc, &ch); err != nil {
			continue
		}
		if _, err := s.store.IntegrateRemote(ctx, id, ch); err != nil {
			return fmt.Errorf("sync: integrate change for %s: %w", payload.DocID, err)
		}
	}

	h, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("sync: lookup document %s: %w", payload.DocID, err)
	}
	if ok {
		s.watchDocument(ctx, h)
	}
	return nil
}

// Bye sends a clean close with reason and closes the session.
func (s *Session) Bye(ctx context.Context, reason string) error {
	err := s.send(ctx, Message{Kind: KindBye, Bye: &ByePayload{Reason: reason}})
	s.closeLocked()
	return err
}

func (s *Session) send(ctx context.Context, msg Message) error {
	select {
	case s.outbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("sync: session closed")
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-s.outbox:
			enc, err := cbor.Marshal(msg)
			if err != nil {
				continue
			}
			if err := s.transport.WriteFrame(ctx, enc); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

func (s *Session) receive(ctx context.Context) (Message, error) {
	frame, err := s.transport.ReadFrame(ctx)
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := cbor.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("sync: decode frame: %w", err)
	}
	return msg, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemotePeerID returns the remote peer's id, populated once the
// handshake completes.
func (s *Session) RemotePeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remotePeer
}
