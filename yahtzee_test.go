package main

import (
	"fmt"
	"math/rand"
	"testing"
)

func newTestServer(seed int64) *Server {
	s := newServer(rand.New(rand.NewSource(seed)))

	n := 0
	s.newGameID = func() string {
		n++
		return fmt.Sprintf("game-%d", n)
	}

	return s
}

// newTestClient builds a client with no socket behind it; handlers only
// ever touch the send channel.
func newTestClient() *Client {
	return &Client{send: make(chan any, 64)}
}

func drain(c *Client) []any {
	var out []any

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func register(t *testing.T, s *Server, c *Client, pid string) RegisterSuccessMessage {
	t.Helper()

	s.handleRegister(c, ClientMessage{Type: "register_player", PlayerID: pid})

	msgs := drain(c)
	if len(msgs) == 0 {
		t.Fatalf("register %s produced no response", pid)
	}

	success, ok := msgs[0].(RegisterSuccessMessage)
	if !ok {
		t.Fatalf("register %s first response = %T, want RegisterSuccessMessage", pid, msgs[0])
	}

	return success
}

// makeMatch registers two players and runs the invite/accept flow,
// returning their clients and the created game.
func makeMatch(t *testing.T, s *Server) (alice, bob *Client, g *Game) {
	t.Helper()

	alice, bob = newTestClient(), newTestClient()
	register(t, s, alice, "alice")
	register(t, s, bob, "bob")

	s.handleInvite(alice, ClientMessage{Type: "send_invite", Inviter: "alice", Invitee: "bob"})
	drain(bob)

	s.handleAccept(bob, ClientMessage{Type: "accept_invite", Inviter: "alice", Invitee: "bob"})

	msgs := drain(alice)
	if len(msgs) == 0 {
		t.Fatalf("accept produced no enterNewGame for the inviter")
	}
	enter, ok := msgs[len(msgs)-1].(EnterNewGameMessage)
	if !ok {
		t.Fatalf("inviter response = %T, want EnterNewGameMessage", msgs[len(msgs)-1])
	}
	drain(bob)

	s.mu.Lock()
	g = s.games[enter.GameID]
	s.mu.Unlock()

	if g == nil {
		t.Fatalf("game %s not found after accept", enter.GameID)
	}

	return alice, bob, g
}

func TestRegisterNewPlayerJoinsPool(t *testing.T) {
	s := newTestServer(1)
	c := newTestClient()

	success := register(t, s, c, "alice")
	if success.PID != "alice" {
		t.Fatalf("registered pid = %s, want alice", success.PID)
	}
	if success.Username == "" {
		t.Fatalf("registered player has no username")
	}

	s.handlePlayersOnline(c)
	msgs := drain(c)
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}

	online := msgs[0].(PlayersOnlineMessage)
	if _, ok := online.Players["alice"]; !ok {
		t.Fatalf("alice missing from availability pool: %v", online.Players)
	}
}

func TestRegisterWithoutPlayerIDIsRejected(t *testing.T) {
	s := newTestServer(2)
	c := newTestClient()

	s.handleRegister(c, ClientMessage{Type: "register_player"})

	msgs := drain(c)
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	errMsg, ok := msgs[0].(ErrorMessage)
	if !ok {
		t.Fatalf("response = %T, want ErrorMessage", msgs[0])
	}
	if errMsg.Code != codeValidation {
		t.Fatalf("error code = %s, want %s", errMsg.Code, codeValidation)
	}
}

func TestReconnectMidGameReplaysState(t *testing.T) {
	s := newTestServer(3)
	alice, _, g := makeMatch(t, s)

	replacement := newTestClient()
	s.handleRegister(replacement, ClientMessage{Type: "register_player", PlayerID: "alice"})

	msgs := drain(replacement)
	if len(msgs) != 3 {
		t.Fatalf("got %d responses on reconnect, want 3", len(msgs))
	}

	if _, ok := msgs[0].(RegisterSuccessMessage); !ok {
		t.Fatalf("first response = %T, want RegisterSuccessMessage", msgs[0])
	}

	resume, ok := msgs[1].(ResumeGameMessage)
	if !ok {
		t.Fatalf("second response = %T, want ResumeGameMessage", msgs[1])
	}
	if resume.GameID != g.id {
		t.Fatalf("resume game id = %s, want %s", resume.GameID, g.id)
	}
	if resume.Opponent.PID != "bob" {
		t.Fatalf("resume opponent = %s, want bob", resume.Opponent.PID)
	}

	update, ok := msgs[2].(GameUpdateMessage)
	if !ok {
		t.Fatalf("third response = %T, want GameUpdateMessage", msgs[2])
	}
	if update.Round != 1 || update.IRoll == nil || *update.IRoll != 0 {
		t.Fatalf("replayed snapshot unexpected: %+v", update)
	}
	if len(update.Dice) != 5 {
		t.Fatalf("replayed snapshot has %d dice, want 5", len(update.Dice))
	}

	s.mu.Lock()
	_, pooled := s.available["alice"]
	rebound := s.online["alice"].client == replacement
	s.mu.Unlock()

	if pooled {
		t.Fatalf("mid-game player returned to availability pool on reconnect")
	}
	if !rebound {
		t.Fatalf("reconnect did not rebind the live connection")
	}

	// The superseded connection's disconnect must now be a no-op.
	s.handleDisconnect(alice)

	s.mu.Lock()
	_, stillOnline := s.online["alice"]
	_, stillPlaying := s.games[g.id]
	s.mu.Unlock()

	if !stillOnline || !stillPlaying {
		t.Fatalf("stale disconnect tore down a live player (online=%v, playing=%v)", stillOnline, stillPlaying)
	}
}

func TestDisconnectMidGameAbandonsMatch(t *testing.T) {
	s := newTestServer(4)
	alice, bob, g := makeMatch(t, s)

	s.handleDisconnect(alice)

	msgs := drain(bob)
	if len(msgs) != 1 {
		t.Fatalf("opponent got %d messages, want 1", len(msgs))
	}
	gone, ok := msgs[0].(OpponentDisconnectMessage)
	if !ok {
		t.Fatalf("opponent message = %T, want OpponentDisconnectMessage", msgs[0])
	}
	if gone.PID != "alice" {
		t.Fatalf("opponentDisconnect pid = %s, want alice", gone.PID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[g.id]; ok {
		t.Fatalf("abandoned game still registered")
	}
	if _, ok := s.online["alice"]; ok {
		t.Fatalf("disconnected player still online")
	}
	if _, ok := s.available["alice"]; ok {
		t.Fatalf("disconnected player still in pool")
	}
	if _, ok := s.available["bob"]; ok {
		t.Fatalf("survivor returned to pool without re-registering")
	}
	if s.online["bob"].gameID != "" {
		t.Fatalf("survivor still bound to the abandoned game")
	}
}

func TestInviteUnavailableInvitee(t *testing.T) {
	s := newTestServer(5)
	alice := newTestClient()
	register(t, s, alice, "alice")

	s.handleInvite(alice, ClientMessage{Type: "send_invite", Inviter: "alice", Invitee: "ghost"})

	msgs := drain(alice)
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	unavailable, ok := msgs[0].(PlayerUnavailableMessage)
	if !ok {
		t.Fatalf("response = %T, want PlayerUnavailableMessage", msgs[0])
	}
	if unavailable.PID != "ghost" {
		t.Fatalf("unavailable pid = %s, want ghost", unavailable.PID)
	}
}

func TestAcceptWithInviterGone(t *testing.T) {
	s := newTestServer(6)
	alice, bob := newTestClient(), newTestClient()
	register(t, s, alice, "alice")
	register(t, s, bob, "bob")

	s.handleInvite(alice, ClientMessage{Type: "send_invite", Inviter: "alice", Invitee: "bob"})
	drain(bob)

	// The inviter vanishes before the invitee answers.
	s.handleDisconnect(alice)

	s.handleAccept(bob, ClientMessage{Type: "accept_invite", Inviter: "alice", Invitee: "bob"})

	msgs := drain(bob)
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	unavailable, ok := msgs[0].(PlayerUnavailableMessage)
	if !ok {
		t.Fatalf("response = %T, want PlayerUnavailableMessage", msgs[0])
	}
	if unavailable.PID != "alice" {
		t.Fatalf("unavailable pid = %s, want alice", unavailable.PID)
	}
}

func TestDeclineNotifiesInviterOnly(t *testing.T) {
	s := newTestServer(7)
	alice, bob := newTestClient(), newTestClient()
	register(t, s, alice, "alice")
	bobInfo := register(t, s, bob, "bob")

	s.handleInvite(alice, ClientMessage{Type: "send_invite", Inviter: "alice", Invitee: "bob"})
	drain(bob)

	s.handleDecline(bob, ClientMessage{Type: "decline_invite", Inviter: "alice", Invitee: "bob"})

	msgs := drain(alice)
	if len(msgs) != 1 {
		t.Fatalf("inviter got %d messages, want 1", len(msgs))
	}
	declined, ok := msgs[0].(InvitationDeclinedMessage)
	if !ok {
		t.Fatalf("inviter message = %T, want InvitationDeclinedMessage", msgs[0])
	}
	if declined.Invitee.PID != "bob" || declined.Invitee.Username != bobInfo.Username {
		t.Fatalf("declined invitee = %+v", declined.Invitee)
	}

	if extra := drain(bob); len(extra) != 0 {
		t.Fatalf("invitee got %d unexpected messages", len(extra))
	}

	// Declining changes nothing: both players stay in the pool.
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.available["alice"]; !ok {
		t.Fatalf("inviter left pool after decline")
	}
	if _, ok := s.available["bob"]; !ok {
		t.Fatalf("invitee left pool after decline")
	}
}

func TestSeatAssignmentIsRoughlyUniform(t *testing.T) {
	const trials = 400

	inviterFirst := 0
	for i := 0; i < trials; i++ {
		s := newTestServer(int64(i))
		_, _, g := makeMatch(t, s)

		if g.seats[0].pid == "alice" {
			inviterFirst++
		}
	}

	if inviterFirst < trials*2/5 || inviterFirst > trials*3/5 {
		t.Fatalf("inviter took seat 0 in %d/%d matches, want roughly half", inviterFirst, trials)
	}
}

func TestRollBroadcastsToBothSeats(t *testing.T) {
	s := newTestServer(8)
	alice, bob, g := makeMatch(t, s)

	active := g.snapshot().activePid
	s.handleRoll(nil, ClientMessage{Type: "roll", GameID: g.id, Player: active, Index: []int{0, 1, 2, 3, 4}})

	for name, c := range map[string]*Client{"alice": alice, "bob": bob} {
		msgs := drain(c)
		if len(msgs) != 1 {
			t.Fatalf("%s got %d messages, want 1", name, len(msgs))
		}

		update, ok := msgs[0].(GameUpdateMessage)
		if !ok {
			t.Fatalf("%s message = %T, want GameUpdateMessage", name, msgs[0])
		}
		if update.IRoll == nil || *update.IRoll != 1 {
			t.Fatalf("%s i_roll = %v, want 1", name, update.IRoll)
		}
		for _, face := range update.Dice {
			if face < 1 || face > 6 {
				t.Fatalf("%s got die %d out of range", name, face)
			}
		}
		if update.ScoreActive != nil {
			t.Fatalf("roll update should not carry score sheets")
		}
	}
}

func TestEmptyRollIsANoop(t *testing.T) {
	s := newTestServer(9)
	alice, bob, g := makeMatch(t, s)

	active := g.snapshot().activePid
	s.handleRoll(nil, ClientMessage{Type: "roll", GameID: g.id, Player: active, Index: []int{}})

	if msgs := drain(alice); len(msgs) != 0 {
		t.Fatalf("alice got %d messages for an empty roll", len(msgs))
	}
	if msgs := drain(bob); len(msgs) != 0 {
		t.Fatalf("bob got %d messages for an empty roll", len(msgs))
	}
	if rolls := g.snapshot().rolls; rolls != 0 {
		t.Fatalf("empty roll consumed a roll: i_roll = %d", rolls)
	}
}

func TestErrorResponsesUseTheTaxonomy(t *testing.T) {
	s := newTestServer(10)
	_, _, g := makeMatch(t, s)
	active := g.snapshot().activePid

	offender := newTestClient()

	tests := []struct {
		name string
		msg  ClientMessage
		want string
	}{
		{
			name: "unknown game id",
			msg:  ClientMessage{Type: "roll", GameID: "no-such-game", Player: active, Index: []int{0}},
			want: codeNotFound,
		},
		{
			name: "fill before rolling",
			msg:  ClientMessage{Type: "fill", GameID: g.id, Player: active, Key: "chance"},
			want: codeState,
		},
		{
			name: "bad dice index",
			msg:  ClientMessage{Type: "roll", GameID: g.id, Player: active, Index: []int{0, 9}},
			want: codeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.dispatch(offender, tt.msg)

			msgs := drain(offender)
			if len(msgs) != 1 {
				t.Fatalf("got %d responses, want 1", len(msgs))
			}
			errMsg, ok := msgs[0].(ErrorMessage)
			if !ok {
				t.Fatalf("response = %T, want ErrorMessage", msgs[0])
			}
			if errMsg.Code != tt.want {
				t.Fatalf("error code = %s, want %s", errMsg.Code, tt.want)
			}
		})
	}
}

func TestFillUnknownCategoryAfterRoll(t *testing.T) {
	s := newTestServer(11)
	_, _, g := makeMatch(t, s)
	active := g.snapshot().activePid

	offender := newTestClient()
	s.handleRoll(offender, ClientMessage{Type: "roll", GameID: g.id, Player: active, Index: []int{0, 1, 2, 3, 4}})
	s.handleFill(offender, ClientMessage{Type: "fill", GameID: g.id, Player: active, Key: "bogus"})

	msgs := drain(offender)
	if len(msgs) == 0 {
		t.Fatalf("no response to unknown category fill")
	}
	errMsg, ok := msgs[len(msgs)-1].(ErrorMessage)
	if !ok {
		t.Fatalf("response = %T, want ErrorMessage", msgs[len(msgs)-1])
	}
	if errMsg.Code != codeValidation {
		t.Fatalf("error code = %s, want %s", errMsg.Code, codeValidation)
	}
}

func TestGameInitializeFallsBackToBoundGame(t *testing.T) {
	s := newTestServer(12)
	alice, _, g := makeMatch(t, s)

	s.handleGameInit(alice, ClientMessage{Type: "game_initialize", Player: "alice"})

	msgs := drain(alice)
	if len(msgs) != 1 {
		t.Fatalf("got %d responses, want 1", len(msgs))
	}
	update, ok := msgs[0].(GameUpdateMessage)
	if !ok {
		t.Fatalf("response = %T, want GameUpdateMessage", msgs[0])
	}
	if update.Round != 1 || update.ActivePlayer != g.snapshot().activePid {
		t.Fatalf("initialize snapshot unexpected: %+v", update)
	}
}

func TestFullMatchOverProtocol(t *testing.T) {
	s := newTestServer(13)
	alice, bob, g := makeMatch(t, s)
	clients := map[string]*Client{"alice": alice, "bob": bob}

	for round := 1; round <= roundCount; round++ {
		for seatIdx := 0; seatIdx < seatCount; seatIdx++ {
			active := g.snapshot().activePid
			c := clients[active]

			s.handleRoll(c, ClientMessage{Type: "roll", GameID: g.id, Player: active, Index: []int{0, 1, 2, 3, 4}})
			s.handleFill(c, ClientMessage{Type: "fill", GameID: g.id, Player: active, Key: string(categories[round-1])})
		}
	}

	statuses := make(map[string]string)
	for name, c := range clients {
		msgs := drain(c)
		if len(msgs) < 2 {
			t.Fatalf("%s got only %d messages", name, len(msgs))
		}

		last, ok := msgs[len(msgs)-1].(GameOverMessage)
		if !ok {
			t.Fatalf("%s last message = %T, want GameOverMessage", name, msgs[len(msgs)-1])
		}
		statuses[name] = last.Status

		final, ok := msgs[len(msgs)-2].(GameUpdateMessage)
		if !ok {
			t.Fatalf("%s second-to-last message = %T, want GameUpdateMessage", name, msgs[len(msgs)-2])
		}
		if final.ScoreActive == nil || final.ScoreInactive == nil {
			t.Fatalf("%s terminal update missing score sheets", name)
		}
	}

	switch {
	case statuses["alice"] == "tie" && statuses["bob"] == "tie":
	case statuses["alice"] == "win" && statuses["bob"] == "lose":
	case statuses["alice"] == "lose" && statuses["bob"] == "win":
	default:
		t.Fatalf("inconsistent outcomes: %v", statuses)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[g.id]; ok {
		t.Fatalf("finished game still registered")
	}
	for _, pid := range []string{"alice", "bob"} {
		if _, ok := s.available[pid]; !ok {
			t.Fatalf("%s not returned to pool after the match", pid)
		}
		if s.online[pid].gameID != "" {
			t.Fatalf("%s still bound to the finished game", pid)
		}
	}
}
