package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ScoredMember is one element of a sorted-set range reply.
type ScoredMember struct {
	Member string
	Score  float64
}

// FormatScore renders a score the way the store echoes it back:
// shortest decimal form, no exponent.
func FormatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func ZAddCommand(key string, score float64, member string) Command {
	return Command{"ZADD", key, FormatScore(score), member}
}

func HSetCommand(key, field, value string) Command {
	return Command{"HSET", key, field, value}
}

// ZRangeWithScores returns members ranked start..stop (inclusive) in
// ascending score order.
func (c *Client) ZRangeWithScores(ctx context.Context, key string, start, stop int) ([]ScoredMember, error) {
	raw, err := c.Do(ctx, Command{"ZRANGE", key, strconv.Itoa(start), strconv.Itoa(stop), "WITHSCORES"})
	if err != nil {
		return nil, err
	}
	return parseScoredMembers(raw)
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := c.Do(ctx, ZAddCommand(key, score, member))
	return err
}

// HGet returns the field value and whether it exists.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	raw, err := c.Do(ctx, Command{"HGET", key, field})
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}
	v, err := scalar(raw)
	if err != nil {
		return "", false, fmt.Errorf("HGET %s %s: %w", key, field, err)
	}
	return v, true, nil
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	_, err := c.Do(ctx, HSetCommand(key, field, value))
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, Command{"PING"})
	return err
}

func parseScoredMembers(raw json.RawMessage) ([]ScoredMember, error) {
	if isNull(raw) {
		return []ScoredMember{}, nil
	}

	var flat []json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("unexpected ZRANGE reply: %w", err)
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("unexpected ZRANGE reply: odd element count %d", len(flat))
	}

	members := make([]ScoredMember, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		member, err := scalar(flat[i])
		if err != nil {
			return nil, fmt.Errorf("ZRANGE member %d: %w", i/2, err)
		}
		rawScore, err := scalar(flat[i+1])
		if err != nil {
			return nil, fmt.Errorf("ZRANGE score %d: %w", i/2, err)
		}
		score, err := strconv.ParseFloat(rawScore, 64)
		if err != nil {
			return nil, fmt.Errorf("ZRANGE score %q for %q: %w", rawScore, member, err)
		}
		members = append(members, ScoredMember{Member: member, Score: score})
	}
	return members, nil
}

// scalar decodes a JSON string or number into its text form.
func scalar(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("not a scalar: %s", string(raw))
	}
	return n.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
