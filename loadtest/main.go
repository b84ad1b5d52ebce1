package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campus-chat/internal/config"
	"campus-chat/internal/identity"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

type contactResponse struct {
	Conversation struct {
		ID string `json:"conversation_id"`
	} `json:"conversation"`
	Created bool `json:"created"`
}

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	pairs := flag.Int("pairs", 500, "number of requester/owner pairs")
	msgCount := flag.Int("messages", 20, "messages per user")
	tenant := flag.String("tenant", "loadtest", "tenant id for minted tokens")
	flag.Parse()

	cfg, tokens, err := loadTokens()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	log.Info("🔥 STARTING STRESS TEST", "users", *pairs*2, "messages_each", *msgCount)
	started := time.Now()
	var (
		wg sync.WaitGroup
		st stats
	)

	// Pair 0 is u_0_a contacting u_0_b about listing-0, and so on.
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(log, tokens, &st, *baseURL, *tenant, pairID, *msgCount)
		}(i)
	}

	wg.Wait()
	log.Info("✅ LOAD TEST COMPLETE",
		"elapsed", time.Since(started),
		"sent", st.sent.Load(),
		"received", st.received.Load(),
		"failed", st.failed.Load())
}

// loadTokens reads the server's environment, so minted tokens pass its validation.
func loadTokens() (config.Config, *identity.Tokens, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, identity.NewTokens(cfg.JWTSecret, cfg.JWTIssuer), nil
}

func runPair(log *slog.Logger, tokens *identity.Tokens, st *stats, baseURL, tenant string, pairID, msgCount int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)

	tokenA, errA := tokens.Issue(userA, tenant, time.Hour)
	tokenB, errB := tokens.Issue(userB, tenant, time.Hour)
	if errA != nil || errB != nil {
		st.failed.Add(1)
		return
	}

	// Both sides click "contact" at once; they must land in the same conversation.
	var (
		idA, idB string
		contact  sync.WaitGroup
	)
	contact.Add(2)
	go func() { defer contact.Done(); idA = createConversation(log, baseURL, tokenA, userB, pairID) }()
	go func() { defer contact.Done(); idB = createConversation(log, baseURL, tokenB, userA, pairID) }()
	contact.Wait()
	if idA == "" || idA != idB {
		log.Error("❌ Contact requests diverged", "pair", pairID, "a", idA, "b", idB)
		st.failed.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, log, st, baseURL, tokenA, idA, userA, msgCount)
	go spamChat(&wsWg, log, st, baseURL, tokenB, idA, userB, msgCount)
	wsWg.Wait()
}

func createConversation(log *slog.Logger, baseURL, token, ownerID string, pairID int) string {
	body, _ := json.Marshal(map[string]string{
		"resource_id": fmt.Sprintf("listing-%d", pairID),
		"owner_id":    ownerID,
		"message":     "Is this still available?",
	})
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/contact-requests", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error("❌ Contact request failed", "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		log.Error("❌ Contact request rejected", "status", resp.StatusCode)
		return ""
	}

	var data contactResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.Conversation.ID
}

func spamChat(wg *sync.WaitGroup, log *slog.Logger, st *stats, baseURL, token, convID, user string, msgCount int) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error("❌ WS Connect Fail", "user", user, "error", err)
		st.failed.Add(1)
		return
	}
	defer conn.Close()

	// Count broadcast frames until the socket goes quiet.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			st.received.Add(int64(bytes.Count(data, []byte(`"message:new"`))))
		}
	}()

	if err := conn.WriteJSON(map[string]any{"type": "join", "conversation_id": convID}); err != nil {
		st.failed.Add(1)
		return
	}
	for i := 0; i < msgCount; i++ {
		err := conn.WriteJSON(map[string]any{
			"type":            "message",
			"conversation_id": convID,
			"body":            fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		})
		if err != nil {
			log.Error("❌ Send Fail", "user", user, "error", err)
			st.failed.Add(1)
			break
		}
		st.sent.Add(1)
		// Small sleep to simulate real network pacing.
		time.Sleep(10 * time.Millisecond)
	}
	<-done
	log.Debug("✅ finished sending", "user", user, "messages", msgCount)
}
