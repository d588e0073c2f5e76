// Package kvtest provides an in-memory stand-in for the Upstash REST API,
// covering the sorted-set and hash commands the leaderboard uses.
package kvtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"leaderboardAPI/internal/config"
	"leaderboardAPI/internal/kvstore"
)

const Token = "test-token"

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	zsets    map[string]map[string]float64
	hashes   map[string]map[string]string
	calls    []kvstore.Command
	txs      int
	failures map[string]int
}

func NewServer(t testing.TB) *Server {
	s := &Server{
		zsets:    make(map[string]map[string]float64),
		hashes:   make(map[string]map[string]string),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Config() config.Store {
	return config.Store{URL: s.URL, Token: Token}
}

// Fail makes every request carrying the named command (e.g. "ZADD")
// answer with the given HTTP status.
func (s *Server) Fail(command string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[strings.ToUpper(command)] = status
}

// Calls returns every command received, in order. Commands sent inside a
// multi-exec are listed individually.
func (s *Server) Calls() []kvstore.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kvstore.Command, len(s.calls))
	copy(out, s.calls)
	return out
}

// Transactions returns the number of multi-exec requests received.
func (s *Server) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

func (s *Server) SeedMember(key, member string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zadd(key, member, score)
}

func (s *Server) SetHash(key, field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hset(key, field, value)
}

func (s *Server) HashValue(key, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.hashes[key][field]
	return v, ok
}

// Members returns the sorted set in rank order.
func (s *Server) Members(key string) []kvstore.ScoredMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranked(key)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var cmds []kvstore.Command
	switch r.URL.Path {
	case "", "/":
		var cmd kvstore.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ERR failed to parse command"})
			return
		}
		cmds = []kvstore.Command{cmd}
	case "/multi-exec":
		if err := json.NewDecoder(r.Body).Decode(&cmds); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ERR failed to parse transaction"})
			return
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cmd := range cmds {
		s.calls = append(s.calls, cmd)
		if len(cmd) == 0 {
			continue
		}
		if status, ok := s.failures[strings.ToUpper(cmd[0])]; ok {
			writeJSON(w, status, map[string]string{"error": "injected failure"})
			return
		}
	}

	if r.URL.Path == "/multi-exec" {
		s.txs++
		replies := make([]map[string]any, 0, len(cmds))
		for _, cmd := range cmds {
			result, errMsg := s.exec(cmd)
			if errMsg != "" {
				replies = append(replies, map[string]any{"error": errMsg})
			} else {
				replies = append(replies, map[string]any{"result": result})
			}
		}
		writeJSON(w, http.StatusOK, replies)
		return
	}

	result, errMsg := s.exec(cmds[0])
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) exec(cmd kvstore.Command) (any, string) {
	if len(cmd) == 0 {
		return nil, "ERR empty command"
	}
	args := cmd[1:]

	switch strings.ToUpper(cmd[0]) {
	case "PING":
		return "PONG", ""
	case "ZADD":
		if len(args) != 3 {
			return nil, "ERR wrong number of arguments for 'zadd' command"
		}
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, "ERR value is not a valid float"
		}
		return s.zadd(args[0], args[2], score), ""
	case "ZRANGE":
		if len(args) < 3 {
			return nil, "ERR wrong number of arguments for 'zrange' command"
		}
		start, err1 := strconv.Atoi(args[1])
		stop, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return nil, "ERR value is not an integer or out of range"
		}
		withScores := len(args) > 3 && strings.EqualFold(args[3], "WITHSCORES")
		return s.zrange(args[0], start, stop, withScores), ""
	case "HGET":
		if len(args) != 2 {
			return nil, "ERR wrong number of arguments for 'hget' command"
		}
		if v, ok := s.hashes[args[0]][args[1]]; ok {
			return v, ""
		}
		return nil, ""
	case "HSET":
		if len(args) != 3 {
			return nil, "ERR wrong number of arguments for 'hset' command"
		}
		return s.hset(args[0], args[1], args[2]), ""
	default:
		return nil, fmt.Sprintf("ERR unknown command '%s'", cmd[0])
	}
}

func (s *Server) zadd(key, member string, score float64) int {
	set, ok := s.zsets[key]
	if !ok {
		set = make(map[string]float64)
		s.zsets[key] = set
	}
	_, existed := set[member]
	set[member] = score
	if existed {
		return 0
	}
	return 1
}

func (s *Server) hset(key, field, value string) int {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	_, existed := h[field]
	h[field] = value
	if existed {
		return 0
	}
	return 1
}

func (s *Server) ranked(key string) []kvstore.ScoredMember {
	out := make([]kvstore.ScoredMember, 0, len(s.zsets[key]))
	for m, sc := range s.zsets[key] {
		out = append(out, kvstore.ScoredMember{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (s *Server) zrange(key string, start, stop int, withScores bool) []string {
	ranked := s.ranked(key)
	n := len(ranked)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}

	out := []string{}
	for i := start; i <= stop; i++ {
		out = append(out, ranked[i].Member)
		if withScores {
			out = append(out, kvstore.FormatScore(ranked[i].Score))
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
