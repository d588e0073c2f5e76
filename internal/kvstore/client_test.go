package kvstore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboardAPI/internal/config"
	"leaderboardAPI/internal/kvstore"
	"leaderboardAPI/internal/kvstore/kvtest"
)

func TestZRangeWithScores_AscendingWithScores(t *testing.T) {
	srv := kvtest.NewServer(t)
	srv.SeedMember("leaderboard", "carol::3", 30.25)
	srv.SeedMember("leaderboard", "alice::1", 10)
	srv.SeedMember("leaderboard", "bob::2", 12.5)

	client := kvstore.New(srv.Config())
	members, err := client.ZRangeWithScores(context.Background(), "leaderboard", 0, 1)
	require.NoError(t, err)

	assert.Equal(t, []kvstore.ScoredMember{
		{Member: "alice::1", Score: 10},
		{Member: "bob::2", Score: 12.5},
	}, members)
	assert.Equal(t, kvstore.Command{"ZRANGE", "leaderboard", "0", "1", "WITHSCORES"}, srv.Calls()[0])
}

func TestZRangeWithScores_EmptySet(t *testing.T) {
	srv := kvtest.NewServer(t)

	members, err := kvstore.New(srv.Config()).ZRangeWithScores(context.Background(), "leaderboard", 0, 11)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestZRangeWithScores_NumericScoresAccepted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":["alice::1",9.75]}`))
	}))
	defer ts.Close()

	members, err := kvstore.New(config.Store{URL: ts.URL, Token: "x"}).
		ZRangeWithScores(context.Background(), "leaderboard", 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []kvstore.ScoredMember{{Member: "alice::1", Score: 9.75}}, members)
}

func TestZRangeWithScores_BadScore(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":["alice::1","fast"]}`))
	}))
	defer ts.Close()

	_, err := kvstore.New(config.Store{URL: ts.URL, Token: "x"}).
		ZRangeWithScores(context.Background(), "leaderboard", 0, 11)
	assert.Error(t, err)
}

func TestHashRoundTrip(t *testing.T) {
	srv := kvtest.NewServer(t)
	client := kvstore.New(srv.Config())
	ctx := context.Background()

	_, ok, err := client.HGet(ctx, "best_times", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.HSet(ctx, "best_times", "alice", "12.5"))

	v, ok, err := client.HGet(ctx, "best_times", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "12.5", v)
}

func TestZAdd_FormatsScore(t *testing.T) {
	srv := kvtest.NewServer(t)
	client := kvstore.New(srv.Config())

	require.NoError(t, client.ZAdd(context.Background(), "leaderboard", 15, "bob::1700000000000"))

	assert.Equal(t, kvstore.Command{"ZADD", "leaderboard", "15", "bob::1700000000000"}, srv.Calls()[0])
	assert.Equal(t, []kvstore.ScoredMember{{Member: "bob::1700000000000", Score: 15}}, srv.Members("leaderboard"))
}

func TestDo_SendsBearerToken(t *testing.T) {
	var auth, contentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"result":"PONG"}`))
	}))
	defer ts.Close()

	err := kvstore.New(config.Store{URL: ts.URL + "/", Token: "secret"}).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "application/json", contentType)
}

func TestDo_NonSuccessStatus(t *testing.T) {
	srv := kvtest.NewServer(t)
	srv.Fail("HGET", http.StatusServiceUnavailable)

	_, _, err := kvstore.New(srv.Config()).HGet(context.Background(), "best_times", "alice")
	require.Error(t, err)

	var kvErr *kvstore.Error
	require.True(t, errors.As(err, &kvErr))
	assert.Equal(t, http.StatusServiceUnavailable, kvErr.Status)
	assert.Equal(t, "injected failure", kvErr.Message)
}

func TestDo_WrongToken(t *testing.T) {
	srv := kvtest.NewServer(t)
	cfg := srv.Config()
	cfg.Token = "wrong"

	err := kvstore.New(cfg).Ping(context.Background())

	var kvErr *kvstore.Error
	require.True(t, errors.As(err, &kvErr))
	assert.Equal(t, http.StatusUnauthorized, kvErr.Status)
}

func TestDo_NetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := kvstore.New(config.Store{URL: url, Token: "x"}).Ping(context.Background())
	require.Error(t, err)

	var kvErr *kvstore.Error
	assert.False(t, errors.As(err, &kvErr))
}

func TestDo_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	err := kvstore.New(config.Store{URL: ts.URL, Token: "x", Timeout: 50 * time.Millisecond}).
		Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_ThrottleHonoursContext(t *testing.T) {
	srv := kvtest.NewServer(t)
	cfg := srv.Config()
	cfg.MaxRPS = 0.001
	client := kvstore.New(cfg)

	require.NoError(t, client.Ping(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Ping(ctx)
	require.Error(t, err)
	assert.Len(t, srv.Calls(), 1)
}

func TestMultiExec_AppliesAllCommands(t *testing.T) {
	srv := kvtest.NewServer(t)
	client := kvstore.New(srv.Config())

	results, err := client.MultiExec(context.Background(),
		kvstore.HSetCommand("best_times", "alice", "9"),
		kvstore.ZAddCommand("leaderboard", 9, "alice::1"),
	)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	v, ok := srv.HashValue("best_times", "alice")
	assert.True(t, ok)
	assert.Equal(t, "9", v)
	assert.Len(t, srv.Members("leaderboard"), 1)
}

func TestMultiExec_CommandError(t *testing.T) {
	srv := kvtest.NewServer(t)

	_, err := kvstore.New(srv.Config()).MultiExec(context.Background(),
		kvstore.HSetCommand("best_times", "alice", "9"),
		kvstore.Command{"NOPE"},
	)

	var kvErr *kvstore.Error
	require.True(t, errors.As(err, &kvErr))
	assert.Contains(t, kvErr.Message, "NOPE")
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "12.5", kvstore.FormatScore(12.5))
	assert.Equal(t, "15", kvstore.FormatScore(15))
	assert.Equal(t, "0.001", kvstore.FormatScore(0.001))
	assert.Equal(t, "100000000000000000000", kvstore.FormatScore(1e20))
}
