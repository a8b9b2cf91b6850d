package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Standalone fake transcription engine for local development. It accepts the
// same multipart request the service sends and answers with deterministic
// timestamped chunks so the full pipeline can be exercised without a real
// speech model.
//
// Run with: go run test_transcription_server.go

type chunk struct {
	Text    string  `json:"text"`
	StartTS float64 `json:"start_ts"`
	EndTS   float64 `json:"end_ts"`
}

type engineResponse struct {
	Chunks []chunk `json:"chunks"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")
	task := r.FormValue("task")
	language := r.FormValue("language")
	sampleRate := r.FormValue("sample_rate")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	// WAV payload: 44 header bytes, then 16-bit samples at 16kHz.
	durationSec := float64(len(audioData)-44) / 2.0 / 16000.0
	if durationSec < 0 {
		durationSec = 0
	}

	log.Printf("🎤 TRANSCRIPTION REQUEST RECEIVED:")
	log.Printf("    Request ID: %s", requestID)
	log.Printf("    Task: %s", task)
	log.Printf("    Language: %s", language)
	log.Printf("    Sample rate: %s", sampleRate)
	log.Printf("    File: %s (%d bytes, ~%.2fs)", header.Filename, len(audioData), durationSec)

	// One chunk per ~2 seconds of audio, covering the whole segment.
	var chunks []chunk
	for start := 0.0; start < durationSec; start += 2.0 {
		end := start + 2.0
		if end > durationSec {
			end = durationSec
		}
		chunks = append(chunks, chunk{
			Text:    fmt.Sprintf("fake transcription %d for %s", len(chunks)+1, requestID),
			StartTS: start,
			EndTS:   end,
		})
	}

	// Simulate model latency.
	time.Sleep(100 * time.Millisecond)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(engineResponse{Chunks: chunks})

	log.Printf("✅ Responded with %d chunks", len(chunks))
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)

	addr := ":9000"
	log.Printf("🚀 Fake transcription engine listening on %s", addr)
	log.Printf("   POST http://localhost%s/transcribe", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
