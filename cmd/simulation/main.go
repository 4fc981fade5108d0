package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/archiveone/pan-auction/internal/auth"
)

const serverAddress = "http://localhost:8080"

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// simulationClient handles HTTP communication with the auction API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
}

func statusOK(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}

// envelope mirrors the API response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// doRequest sends an authenticated request and decodes the response envelope
func (sc *simulationClient) doRequest(method, path string, payload interface{}, headers map[string]string) (*envelope, int, error) {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sc.authToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, err
	}

	return &env, resp.StatusCode, nil
}

// createAuction creates and publishes a timed auction, returning its ID
func (sc *simulationClient) createAuction(eventID string, endsIn time.Duration) (string, error) {
	payload := map[string]interface{}{
		"seller_id":                "seller-001",
		"event_id":                 eventID,
		"title":                    "Lot 1: Vintage Wristwatch",
		"currency":                 "USD",
		"starting_price":           100.0,
		"reserve_price":            150.0,
		"min_bid_increment":        5.0,
		"start_time":               time.Now().Add(-time.Minute),
		"end_time":                 time.Now().Add(endsIn),
		"auto_extend":              true,
		"extension_window_seconds": 30,
	}

	env, status, err := sc.doRequest(http.MethodPost, "/api/v1/auctions", payload, nil)
	if err != nil {
		return "", err
	}
	if !statusOK(status) {
		return "", fmt.Errorf("create auction failed with status %d", status)
	}

	var created struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return "", err
	}

	_, status, err = sc.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/auctions/%s/publish", created.AuctionID), nil, nil)
	if err != nil {
		return "", err
	}
	if !statusOK(status) {
		return "", fmt.Errorf("publish failed with status %d", status)
	}

	return created.AuctionID, nil
}

// registerBidder registers a bidder for the event and approves them
func (sc *simulationClient) registerBidder(eventID, bidderID string, creditLimit float64) error {
	payload := map[string]interface{}{
		"bidder_id":    bidderID,
		"credit_limit": creditLimit,
		"contact_name": "Simulation Bidder",
	}

	env, status, err := sc.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), payload, nil)
	if err != nil {
		return err
	}
	if !statusOK(status) {
		return fmt.Errorf("registration failed with status %d", status)
	}

	var reg struct {
		RegistrationID string `json:"registration_id"`
	}
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		return err
	}

	_, status, err = sc.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/internal/registrations/%s/approve", reg.RegistrationID), nil, nil)
	if err != nil {
		return err
	}
	if !statusOK(status) {
		return fmt.Errorf("approval failed with status %d", status)
	}

	return nil
}

// placeBid submits a bid and logs the outcome
func (sc *simulationClient) placeBid(auctionID, bidderID string, amount, maxProxy float64) error {
	payload := map[string]interface{}{
		"bidder_id":        bidderID,
		"amount":           amount,
		"max_proxy_amount": maxProxy,
	}
	headers := map[string]string{"Idempotency-Key": uuid.New().String()}

	env, status, err := sc.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/auctions/%s/bids", auctionID), payload, headers)
	if err != nil {
		return err
	}
	if !statusOK(status) {
		if env.Error != nil {
			log.Warn().
				Str("bidder", bidderID).
				Str("code", env.Error.Code).
				Str("message", env.Error.Message).
				Msg("Bid rejected")
			return nil
		}
		return fmt.Errorf("bid failed with status %d", status)
	}

	var result struct {
		CurrentBid float64 `json:"current_bid"`
		WinnerID   string  `json:"current_winner_id"`
		Winning    bool    `json:"winning"`
		Extended   bool    `json:"extended"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return err
	}

	log.Info().
		Str("bidder", bidderID).
		Float64("amount", amount).
		Float64("current_bid", result.CurrentBid).
		Str("winner", result.WinnerID).
		Bool("winning", result.Winning).
		Bool("extended", result.Extended).
		Msg("Bid placed")

	return nil
}

func main() {
	log.Info().Msg("Starting auction simulation")

	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulation client")
	}

	eventID := "EVT_" + uuid.New().String()

	auctionID, err := sc.createAuction(eventID, 45*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auction")
	}
	log.Info().Str("auction_id", auctionID).Str("event_id", eventID).Msg("Auction live")

	bidders := []string{"bidder-alice", "bidder-bob", "bidder-carol"}
	for _, b := range bidders {
		if err := sc.registerBidder(eventID, b, 10000); err != nil {
			log.Fatal().Err(err).Str("bidder", b).Msg("Failed to register bidder")
		}
	}
	log.Info().Int("bidders", len(bidders)).Msg("Bidders registered and approved")

	// Proxy bid establishes a ceiling, then direct bids compete against it
	if err := sc.placeBid(auctionID, "bidder-alice", 100, 300); err != nil {
		log.Fatal().Err(err).Msg("Bid failed")
	}
	if err := sc.placeBid(auctionID, "bidder-bob", 150, 0); err != nil {
		log.Fatal().Err(err).Msg("Bid failed")
	}
	if err := sc.placeBid(auctionID, "bidder-carol", 200, 400); err != nil {
		log.Fatal().Err(err).Msg("Bid failed")
	}

	// Late bid inside the extension window should push the end time out
	log.Info().Msg("Waiting for the extension window...")
	time.Sleep(20 * time.Second)
	if err := sc.placeBid(auctionID, "bidder-bob", 320, 0); err != nil {
		log.Fatal().Err(err).Msg("Late bid failed")
	}

	// Wait past the (extended) end time, then run the closing sweep
	log.Info().Msg("Waiting for auction to end...")
	time.Sleep(65 * time.Second)

	env, status, err := sc.doRequest(http.MethodPost, "/api/v1/internal/close-due", nil, nil)
	if err != nil || !statusOK(status) {
		log.Fatal().Err(err).Int("status", status).Msg("Closing sweep failed")
	}
	log.Info().RawJSON("closed", env.Data).Msg("Closing sweep complete")

	env, status, err = sc.doRequest(http.MethodGet, fmt.Sprintf("/api/v1/auctions/%s", auctionID), nil, nil)
	if err != nil || !statusOK(status) {
		log.Fatal().Err(err).Int("status", status).Msg("Failed to fetch final auction state")
	}
	var final struct {
		Status          string `json:"status"`
		CurrentWinnerID string `json:"current_winner_id"`
	}
	if err := json.Unmarshal(env.Data, &final); err != nil {
		log.Fatal().Err(err).Msg("Failed to decode final auction state")
	}
	log.Info().RawJSON("auction", env.Data).Msg("Final auction state")

	env, status, err = sc.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/internal/events/%s/settle", eventID), nil, nil)
	if err != nil || !statusOK(status) {
		log.Fatal().Err(err).Int("status", status).Msg("Event settlement failed")
	}
	log.Info().RawJSON("settlement", env.Data).Msg("Event settled")

	if final.Status == "SOLD" && final.CurrentWinnerID != "" {
		env, status, err = sc.doRequest(http.MethodGet,
			fmt.Sprintf("/api/v1/internal/settlements/invoice/%s/%s", eventID, final.CurrentWinnerID), nil, nil)
		if err != nil || !statusOK(status) {
			log.Fatal().Err(err).Int("status", status).Msg("Failed to fetch invoice")
		}
		log.Info().RawJSON("invoice", env.Data).Msg("Buyer invoice")

		env, status, err = sc.doRequest(http.MethodGet,
			fmt.Sprintf("/api/v1/internal/settlements/payout/%s/seller-001", eventID), nil, nil)
		if err != nil || !statusOK(status) {
			log.Fatal().Err(err).Int("status", status).Msg("Failed to fetch payout")
		}
		log.Info().RawJSON("payout", env.Data).Msg("Seller payout")
	}

	log.Info().Msg("Simulation complete")
}
