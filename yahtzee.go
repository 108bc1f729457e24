// Yahtzee Duel
//
// Two players, one authoritative score sheet each, thirteen rounds.
// Clients connect over a WebSocket, register a durable player id, and
// invite each other from the pool of available players. The server owns
// the entire match state and pushes a fresh snapshot to both sides
// after every roll and fill.
//
// Features:
// - Single WebSocket endpoint: /ws
// - Durable player ids supplied by the client; display names assigned
//   by the server
// - Invite / accept / decline matchmaking over the availability pool
// - First mover chosen 50/50 when an invite is accepted
// - Three rolls per turn, any subset of the five dice
// - Upper-section bonus of 35 once the upper sum reaches 63
// - Reconnection mid-match: re-registering rebinds the connection and
//   replays the current game state
// - Mid-match disconnects abandon the game and notify the opponent
// - In-browser QR code to share the server address, backed by go-qrcode

package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

// Player holds the registry record for one durable player id.
type Player struct {
	pid      string
	username string
	client   *Client // nil when offline
	gameID   string  // "" when not in a match
}

func (p *Player) info() PlayerInfo {
	return PlayerInfo{
		PID:      p.pid,
		Username: p.username,
	}
}

// PlayerInfo is the public identity shared with other clients.
type PlayerInfo struct {
	PID      string `json:"pid"`
	Username string `json:"username"`
}

// ClientMessage covers every inbound protocol message.
type ClientMessage struct {
	Type     string `json:"type"`                // "register_player", "get_players_online", "send_invite", "accept_invite", "decline_invite", "game_initialize", "roll", "fill"
	PlayerID string `json:"playerId,omitempty"`  // register_player
	Inviter  string `json:"inviter,omitempty"`   // invite flow
	Invitee  string `json:"invitee,omitempty"`   // invite flow
	GameID   string `json:"game_id,omitempty"`   // game actions
	Player   string `json:"player_id,omitempty"` // game actions
	Index    []int  `json:"index,omitempty"`     // roll
	Key      string `json:"key,omitempty"`       // fill
}

// RegisterSuccessMessage confirms a registration with the identity the
// server holds for this pid.
type RegisterSuccessMessage struct {
	Type     string `json:"type"` // "registerSuccessResponse"
	PID      string `json:"pid"`
	Username string `json:"username"`
}

// ResumeGameMessage tells a reconnecting player which match they are
// still part of.
type ResumeGameMessage struct {
	Type     string     `json:"type"` // "resumeGame"
	GameID   string     `json:"game_id"`
	Opponent PlayerInfo `json:"oppo_player"`
}

// OpponentDisconnectMessage tells the surviving seat its match is gone.
type OpponentDisconnectMessage struct {
	Type string `json:"type"` // "opponentDisconnect"
	PID  string `json:"pid"`
}

// PlayersOnlineMessage lists the availability pool keyed by pid.
type PlayersOnlineMessage struct {
	Type    string                `json:"type"` // "getPlayersOnlineResponse"
	Players map[string]PlayerInfo `json:"players"`
}

// ReceiveInvitationMessage carries an invitation to the invitee.
type ReceiveInvitationMessage struct {
	Type    string     `json:"type"` // "receiveInvitation"
	Inviter PlayerInfo `json:"inviter"`
}

// PlayerUnavailableMessage reports that the other party of an invite
// has left the pool.
type PlayerUnavailableMessage struct {
	Type string `json:"type"` // "playerNoLongerAvailable"
	PID  string `json:"pid"`
}

// EnterNewGameMessage seats both players into a fresh match.
type EnterNewGameMessage struct {
	Type     string     `json:"type"` // "enterNewGame"
	GameID   string     `json:"game_id"`
	Opponent PlayerInfo `json:"oppo_player"`
}

// InvitationDeclinedMessage notifies the inviter only.
type InvitationDeclinedMessage struct {
	Type    string     `json:"type"` // "invitationDeclined"
	Invitee PlayerInfo `json:"invitee"`
}

// GameUpdateMessage is the state snapshot pushed after rolls and fills.
// Only the fields relevant to the triggering action are set; i_roll is
// a pointer because zero is a meaningful roll count.
type GameUpdateMessage struct {
	Type          string          `json:"type"` // "gameUpdate"
	Dice          []int           `json:"dice,omitempty"`
	IRoll         *int            `json:"i_roll,omitempty"`
	Round         int             `json:"round,omitempty"`
	ActivePlayer  string          `json:"active_player,omitempty"`
	ScoreActive   map[string]*int `json:"score_active,omitempty"`
	ScoreInactive map[string]*int `json:"score_inactive,omitempty"`
}

// GameOverMessage delivers the per-seat outcome of a finished match.
type GameOverMessage struct {
	Type   string `json:"type"`   // "gameOver"
	Status string `json:"status"` // "win", "lose" or "tie"
}

// ErrorMessage reports a rejected action to the offending client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "errorResponse"
	Code    string `json:"code"` // "validation", "state" or "not_found"
	Message string `json:"message"`
}

// Client is one live WebSocket connection.
type Client struct {
	conn *websocket.Conn
	send chan any
	pid  string // set once register_player succeeds
}

// trySend queues a message without blocking; a client that cannot keep
// up loses messages rather than stalling the match.
func (c *Client) trySend(msg any) {
	if c == nil {
		return
	}

	select {
	case c.send <- msg:
	default:
		log.Warn().Str("player_id", c.pid).Msg("Dropping message to slow client")
	}
}

// Server owns the three shared tables: online players, the availability
// pool, and ongoing games. All three are mutated only under mu; each
// Game additionally serializes its own mutations.
type Server struct {
	mu        sync.Mutex
	online    map[string]*Player
	available map[string]*Player
	games     map[string]*Game

	rng       *rand.Rand    // seat assignment, display names, per-game seeds
	newGameID func() string // injectable for deterministic tests
}

func newServer(rng *rand.Rand) *Server {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Server{
		online:    make(map[string]*Player),
		available: make(map[string]*Player),
		games:     make(map[string]*Game),
		rng:       rng,
		newGameID: uuid.NewString,
	}
}

func (s *Server) sendError(c *Client, err error) {
	c.trySend(ErrorMessage{
		Type:    "errorResponse",
		Code:    errorCode(err),
		Message: err.Error(),
	})
}

// handleRegister creates a new registry record, or rebinds the existing
// one when the pid has been seen before (browser refresh, dropped
// connection). A rebinding player with a live match gets the match
// replayed instead of rejoining the pool.
func (s *Server) handleRegister(c *Client, msg ClientMessage) {
	if msg.PlayerID == "" {
		s.sendError(c, fmt.Errorf("%w: register_player requires a playerId", ErrBadMessage))
		return
	}

	s.mu.Lock()

	var resume *Game

	p, known := s.online[msg.PlayerID]
	if known {
		old := p.client
		p.client = c
		c.pid = p.pid

		if old != nil && old != c && old.conn != nil {
			// The new connection supersedes the old one; its eventual
			// disconnect must not tear the player down.
			_ = old.conn.Close()
		}

		if p.gameID != "" {
			resume = s.games[p.gameID]
		} else {
			s.available[p.pid] = p
		}

		log.Info().Str("player_id", p.pid).Str("username", p.username).Msg("Player reestablished a connection")
	} else {
		p = &Player{
			pid:      msg.PlayerID,
			username: randomUsername(s.rng),
			client:   c,
		}
		c.pid = p.pid
		s.online[p.pid] = p
		s.available[p.pid] = p

		log.Info().Str("player_id", p.pid).Str("username", p.username).Msg("New player registered")
	}

	reply := RegisterSuccessMessage{
		Type:     "registerSuccessResponse",
		PID:      p.pid,
		Username: p.username,
	}

	s.mu.Unlock()

	c.trySend(reply)

	if resume != nil {
		opponent, err := resume.opponentOf(p.pid)
		if err != nil {
			log.Error().Err(err).Str("player_id", p.pid).Str("game_id", resume.id).Msg("Resume lookup failed")
			return
		}

		c.trySend(ResumeGameMessage{
			Type:     "resumeGame",
			GameID:   resume.id,
			Opponent: PlayerInfo{PID: opponent.pid, Username: opponent.username},
		})
		c.trySend(fullUpdate(resume.snapshot()))
	}
}

// handleDisconnect runs when a connection's read loop exits. A stale
// connection that has already been superseded is ignored; otherwise the
// player is gone: any live match is abandoned, the opponent notified,
// and the record dropped.
func (s *Server) handleDisconnect(c *Client) {
	s.mu.Lock()
	defer func() {
		close(c.send)
		s.mu.Unlock()
	}()

	if c.pid == "" {
		return
	}

	p, known := s.online[c.pid]
	if !known || p.client != c {
		log.Debug().Str("player_id", c.pid).Msg("Stale session disconnected")
		return
	}

	if p.gameID != "" {
		if g, ok := s.games[p.gameID]; ok {
			delete(s.games, p.gameID)

			if opponent, err := g.opponentOf(p.pid); err == nil {
				if opp, ok := s.online[opponent.pid]; ok {
					// The survivor keeps its registry record but is not
					// returned to the pool until it registers again.
					opp.gameID = ""
					opp.client.trySend(OpponentDisconnectMessage{
						Type: "opponentDisconnect",
						PID:  p.pid,
					})
				}
			}

			log.Info().Str("player_id", p.pid).Str("game_id", g.id).Msg("Match abandoned by disconnect")
		}
	}

	delete(s.available, p.pid)
	delete(s.online, p.pid)

	log.Info().Str("player_id", p.pid).Str("username", p.username).Msg("Player disconnected")
}

// handlePlayersOnline returns a snapshot of the availability pool.
func (s *Server) handlePlayersOnline(c *Client) {
	s.mu.Lock()

	players := make(map[string]PlayerInfo, len(s.available))
	for pid, p := range s.available {
		players[pid] = p.info()
	}

	s.mu.Unlock()

	c.trySend(PlayersOnlineMessage{
		Type:    "getPlayersOnlineResponse",
		Players: players,
	})
}

// handleInvite relays an invitation to the invitee, or tells the
// inviter the invitee has left the pool.
func (s *Server) handleInvite(c *Client, msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inviter, ok := s.online[msg.Inviter]
	if !ok {
		s.sendError(c, ErrUnknownPlayer)
		return
	}

	invitee, ok := s.available[msg.Invitee]
	if !ok {
		c.trySend(PlayerUnavailableMessage{
			Type: "playerNoLongerAvailable",
			PID:  msg.Invitee,
		})
		return
	}

	invitee.client.trySend(ReceiveInvitationMessage{
		Type:    "receiveInvitation",
		Inviter: inviter.info(),
	})
}

// handleAccept seats both players into a new match, removing them from
// the pool. Seat 0 (the first mover) is chosen 50/50, once, when the
// match is made.
func (s *Server) handleAccept(c *Client, msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invitee, ok := s.online[msg.Invitee]
	if !ok {
		s.sendError(c, ErrUnknownPlayer)
		return
	}

	if invitee.gameID != "" {
		s.sendError(c, fmt.Errorf("invitee %s is already in a game", invitee.pid))
		return
	}

	inviter, ok := s.available[msg.Inviter]
	if !ok {
		c.trySend(PlayerUnavailableMessage{
			Type: "playerNoLongerAvailable",
			PID:  msg.Inviter,
		})
		return
	}

	delete(s.available, inviter.pid)
	delete(s.available, invitee.pid)

	first, second := inviter, invitee
	if s.rng.Intn(2) == 0 {
		first, second = invitee, inviter
	}

	id := s.newGameID()
	g := newGame(id,
		seat{pid: first.pid, username: first.username},
		seat{pid: second.pid, username: second.username},
		rand.New(rand.NewSource(s.rng.Int63())),
	)

	s.games[id] = g
	inviter.gameID = id
	invitee.gameID = id

	inviter.client.trySend(EnterNewGameMessage{
		Type:     "enterNewGame",
		GameID:   id,
		Opponent: invitee.info(),
	})
	invitee.client.trySend(EnterNewGameMessage{
		Type:     "enterNewGame",
		GameID:   id,
		Opponent: inviter.info(),
	})

	log.Info().
		Str("game_id", id).
		Str("seat_0", first.pid).
		Str("seat_1", second.pid).
		Msg("Match created")
}

// handleDecline notifies the inviter only; nothing else changes.
func (s *Server) handleDecline(c *Client, msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inviter, ok := s.online[msg.Inviter]
	if !ok {
		s.sendError(c, ErrUnknownPlayer)
		return
	}

	invitee, ok := s.online[msg.Invitee]
	if !ok {
		s.sendError(c, ErrUnknownPlayer)
		return
	}

	inviter.client.trySend(InvitationDeclinedMessage{
		Type:    "invitationDeclined",
		Invitee: invitee.info(),
	})
}

// resolveGame finds the match a message refers to. An empty game id
// falls back to the match bound to the requesting player.
func (s *Server) resolveGame(gameID, pid string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gameID == "" {
		p, ok := s.online[pid]
		if !ok {
			return nil, ErrUnknownPlayer
		}
		gameID = p.gameID
	}

	g, ok := s.games[gameID]
	if !ok {
		return nil, ErrUnknownGame
	}

	return g, nil
}

// fullUpdate renders the complete snapshot, as sent on initialize,
// resume, and continuing fills.
func fullUpdate(snap gameSnapshot) GameUpdateMessage {
	rolls := snap.rolls

	return GameUpdateMessage{
		Type:          "gameUpdate",
		Dice:          snap.dice,
		IRoll:         &rolls,
		Round:         snap.round,
		ActivePlayer:  snap.activePid,
		ScoreActive:   snap.scoreActive,
		ScoreInactive: snap.scoreInactive,
	}
}

// handleGameInit replies to the requesting client only, with the full
// current state of its match.
func (s *Server) handleGameInit(c *Client, msg ClientMessage) {
	g, err := s.resolveGame(msg.GameID, msg.Player)
	if err != nil {
		s.sendError(c, err)
		return
	}

	c.trySend(fullUpdate(g.snapshot()))
}

// broadcast sends a message to the live connections of both seats.
func (s *Server) broadcast(g *Game, msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range g.seats {
		if p, ok := s.online[st.pid]; ok {
			p.client.trySend(msg)
		}
	}
}

// handleRoll rolls the requested dice and pushes the new faces and roll
// count to both seats. An empty index list is a no-op, reserved for
// client-side roll feedback.
func (s *Server) handleRoll(c *Client, msg ClientMessage) {
	if len(msg.Index) == 0 {
		log.Debug().Str("player_id", msg.Player).Msg("Ignoring empty roll")
		return
	}

	g, err := s.resolveGame(msg.GameID, msg.Player)
	if err != nil {
		s.sendError(c, err)
		return
	}

	if err := g.Roll(msg.Player, msg.Index); err != nil {
		s.sendError(c, err)
		return
	}

	snap := g.snapshot()
	rolls := snap.rolls

	s.broadcast(g, GameUpdateMessage{
		Type:  "gameUpdate",
		Dice:  snap.dice,
		IRoll: &rolls,
	})
}

// handleFill writes a category for the active seat and pushes the
// resulting state to both seats. On the terminal fill it additionally
// reports the outcome per seat, releases the match, and returns both
// players to the pool.
func (s *Server) handleFill(c *Client, msg ClientMessage) {
	g, err := s.resolveGame(msg.GameID, msg.Player)
	if err != nil {
		s.sendError(c, err)
		return
	}

	continues, err := g.Fill(msg.Player, Category(msg.Key))
	if err != nil {
		s.sendError(c, err)
		return
	}

	snap := g.snapshot()

	if continues {
		rolls := snap.rolls

		s.broadcast(g, GameUpdateMessage{
			Type:          "gameUpdate",
			IRoll:         &rolls,
			Round:         snap.round,
			ActivePlayer:  snap.activePid,
			ScoreActive:   snap.scoreActive,
			ScoreInactive: snap.scoreInactive,
		})

		log.Debug().
			Str("game_id", g.id).
			Str("player_id", msg.Player).
			Str("category", msg.Key).
			Msg("Category filled")

		return
	}

	s.broadcast(g, GameUpdateMessage{
		Type:          "gameUpdate",
		ActivePlayer:  snap.activePid,
		ScoreActive:   snap.scoreActive,
		ScoreInactive: snap.scoreInactive,
	})

	outcome, err := g.Winner()
	if err != nil {
		log.Error().Err(err).Str("game_id", g.id).Msg("Winner lookup on terminal fill failed")
		return
	}

	s.finishGame(g, outcome)
}

// finishGame reports win/lose/tie to each seat, clears both game
// bindings, returns both players to the pool, and drops the match.
func (s *Server) finishGame(g *Game, outcome matchOutcome) {
	statuses := [seatCount]string{"tie", "tie"}
	switch outcome {
	case outcomeSeatZero:
		statuses = [seatCount]string{"win", "lose"}
	case outcomeSeatOne:
		statuses = [seatCount]string{"lose", "win"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, st := range g.seats {
		p, ok := s.online[st.pid]
		if !ok {
			continue
		}

		p.gameID = ""
		s.available[p.pid] = p
		p.client.trySend(GameOverMessage{
			Type:   "gameOver",
			Status: statuses[i],
		})
	}

	delete(s.games, g.id)

	log.Info().Str("game_id", g.id).Str("outcome", statuses[0]+"/"+statuses[1]).Msg("Match finished")
}

// dispatch routes one inbound message; unknown types (including the
// never-implemented play_bot) are ignored.
func (s *Server) dispatch(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "register_player":
		s.handleRegister(c, msg)
	case "get_players_online":
		s.handlePlayersOnline(c)
	case "send_invite":
		s.handleInvite(c, msg)
	case "accept_invite":
		s.handleAccept(c, msg)
	case "decline_invite":
		s.handleDecline(c, msg)
	case "game_initialize":
		s.handleGameInit(c, msg)
	case "roll":
		s.handleRoll(c, msg)
	case "fill":
		s.handleFill(c, msg)
	default:
		log.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
	}
}

func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == cfg.allowedOrigin
		},
	}
}

// serveWS upgrades the connection and runs its read loop to completion.
func serveWS(cfg *Config, s *Server) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", realIP(r)).Msg("WebSocket upgrade failed")
			return
		}

		log.Debug().Str("remote", realIP(r)).Msg("New connection")

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
		}

		go client.writePump()
		client.readPump(s)
	}
}

func (c *Client) readPump(s *Server) {
	defer func() {
		s.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		s.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// registerYahtzee wires the game endpoints:
//   - $prefix/ws → the game protocol WebSocket
//   - $prefix/qr → PNG QR code pointing at the server
func registerYahtzee(cfg *Config, s *Server, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, s))
	mux.GET(cfg.prefix+"/qr", qrHandler(cfg))
}
