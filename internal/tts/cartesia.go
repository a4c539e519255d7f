package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	cartesiaBytesEndpoint = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion       = "2024-06-10"
)

// CartesiaClient calls the Cartesia TTS bytes endpoint and returns WAV
// audio. Cartesia does not return word timestamps on this endpoint, so
// Result.Coarse is always nil and alignment is mandatory downstream.
type CartesiaClient struct {
	apiKey string
	client *http.Client
}

// NewCartesiaClient creates a Cartesia TTS client.
func NewCartesiaClient(apiKey string, timeout time.Duration) *CartesiaClient {
	return &CartesiaClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (c *CartesiaClient) Name() string { return "cartesia" }

type cartesiaRequest struct {
	ModelID      string              `json:"model_id"`
	Transcript   string              `json:"transcript"`
	Voice        cartesiaVoice       `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
	Language     string              `json:"language,omitempty"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// Synthesize converts text to WAV audio.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string, voice VoiceConfig) (*Result, error) {
	body, err := json.Marshal(cartesiaRequest{
		ModelID:    voice.ModelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: voice.VoiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "wav",
			SampleRate: 44100,
			Encoding:   "pcm_s16le",
		},
		Language: voice.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cartesiaBytesEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cartesia API error (status %d): %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &Result{Audio: audio}, nil
}
