package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/belief0714/AINarrativeRPG/internal/observability"
	"github.com/belief0714/AINarrativeRPG/pkg/conversation"
)

// Canned reply when speech recognition returns nothing usable. The turn is
// not recorded; the player just hears a prompt to repeat themselves.
const (
	unclearSpeechReply    = "我没有听清，请您对着麦克风再说一遍。"
	unclearSpeechUserText = "（未识别到有效语音）"
)

// chatRequest is the JSON body of a text turn.
type chatRequest struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
	TargetRole string `json:"target_role"`
}

// chatResponse is what the client plays and renders after a turn.
type chatResponse struct {
	Text     string `json:"text"`
	AudioURL string `json:"audio_url"`
	Role     string `json:"role"`
	UserText string `json:"user_text"`
}

// handleChat accepts one player turn, as either a multipart form carrying an
// audio recording or a JSON body carrying text.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.handleVoiceTurn(w, r)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "request", "body must be multipart form data or JSON")
		return
	}
	h.runTurn(w, r, req.SessionID, req.TargetRole, req.Text, req.Text)
}

// handleVoiceTurn runs the speech leg: store the upload, normalize it for
// recognition, transcribe, then hand off to the shared turn pipeline.
func (h *Handler) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		Error(w, http.StatusBadRequest, "request", "multipart form must carry an audio file")
		return
	}
	defer func() { _ = file.Close() }()

	sessionID := r.FormValue("session_id")
	targetRole := r.FormValue("target_role")

	uploadPath, err := h.files.SaveUpload(file, filepath.Ext(header.Filename))
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		Error(w, http.StatusInternalServerError, "media", "could not store the recording")
		return
	}
	defer h.files.Remove(uploadPath)

	wavPath := h.files.TempPath("converted", ".wav")
	defer h.files.Remove(wavPath)

	convStart := time.Now()
	if err := h.converter.Normalize(r.Context(), uploadPath, wavPath); err != nil {
		slog.Error("audio normalization failed", "error", err)
		Error(w, http.StatusInternalServerError, "media", "could not process the recording")
		return
	}
	observability.RecordStage("convert", time.Since(convStart))

	wav, err := os.ReadFile(wavPath)
	if err != nil {
		slog.Error("failed to read converted audio", "error", err)
		Error(w, http.StatusInternalServerError, "media", "could not process the recording")
		return
	}

	sttStart := time.Now()
	userText, err := h.stt.Transcribe(r.Context(), wav, "wav", 16000)
	observability.RecordStage("stt", time.Since(sttStart))
	if err != nil {
		slog.Error("transcription failed", "error", err)
		Error(w, http.StatusBadGateway, "transcription", "speech recognition failed")
		return
	}

	if strings.TrimSpace(userText) == "" {
		h.respondUnclearSpeech(w, r, targetRole)
		return
	}

	h.runTurn(w, r, sessionID, targetRole, userText, userText)
}

// respondUnclearSpeech answers an empty transcription with a fixed spoken
// prompt. Nothing is recorded in the session.
func (h *Handler) respondUnclearSpeech(w http.ResponseWriter, r *http.Request, targetRole string) {
	p, _ := h.registry.Resolve(targetRole)

	audioURL, err := h.synthesizeReply(r, unclearSpeechReply)
	if err != nil {
		slog.Error("synthesis of retry prompt failed", "error", err)
		Error(w, http.StatusBadGateway, "synthesis", "speech synthesis failed")
		return
	}

	JSON(w, http.StatusOK, chatResponse{
		Text:     unclearSpeechReply,
		AudioURL: audioURL,
		Role:     p.ID,
		UserText: unclearSpeechUserText,
	})
}

// runTurn is the shared pipeline: begin the turn, generate, synthesize,
// commit. Any failure after BeginTurn aborts before surfacing, so a failed
// turn leaves the transcript exactly as it was.
func (h *Handler) runTurn(w http.ResponseWriter, r *http.Request, sessionID, targetRole, userText, echoText string) {
	ctx := r.Context()
	p, _ := h.registry.Resolve(targetRole)

	log, err := h.store.BeginTurn(ctx, sessionID, p.Instruction, userText)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrEmptyInput):
			Error(w, http.StatusBadRequest, "request", "text must not be empty")
		case errors.Is(err, conversation.ErrStoreClosed):
			Error(w, http.StatusServiceUnavailable, "session", "server is shutting down")
		default:
			Error(w, http.StatusInternalServerError, "session", err.Error())
		}
		observability.RecordTurn(p.ID, "rejected")
		return
	}

	committed := false
	defer func() {
		if !committed {
			if abortErr := h.store.AbortTurn(ctx, sessionID); abortErr != nil {
				slog.Error("failed to abort turn", "session", sessionID, "error", abortErr)
			}
		}
	}()

	chatStart := time.Now()
	reply, err := h.generator.Generate(ctx, log)
	observability.RecordStage("chat", time.Since(chatStart))
	if err != nil {
		slog.Error("reply generation failed", "session", sessionID, "role", p.ID, "error", err)
		observability.RecordTurn(p.ID, "generation")
		Error(w, http.StatusBadGateway, "generation", "the storyteller is unavailable, try again")
		return
	}

	audioURL, err := h.synthesizeReply(r, reply)
	if err != nil {
		slog.Error("reply synthesis failed", "session", sessionID, "error", err)
		observability.RecordTurn(p.ID, "synthesis")
		Error(w, http.StatusBadGateway, "synthesis", "speech synthesis failed")
		return
	}

	if err := h.store.CommitReply(ctx, sessionID, reply); err != nil {
		slog.Error("failed to commit reply", "session", sessionID, "error", err)
		observability.RecordTurn(p.ID, "session")
		Error(w, http.StatusInternalServerError, "session", "could not record the reply")
		return
	}
	committed = true
	observability.RecordTurn(p.ID, "ok")
	observability.SetActiveSessions(h.store.Len())

	// Mirror the exchange for operators. Failures are logged, never surfaced.
	if err := h.archive.AppendTurn(ctx, sessionID,
		conversation.Message{Role: conversation.RoleUser, Content: strings.TrimSpace(userText)},
		conversation.Message{Role: conversation.RoleAssistant, Content: reply},
	); err != nil {
		slog.Warn("transcript archive write failed", "session", sessionID, "error", err)
	}

	JSON(w, http.StatusOK, chatResponse{
		Text:     reply,
		AudioURL: audioURL,
		Role:     p.ID,
		UserText: echoText,
	})
}

// synthesizeReply converts reply text to MP3, stores it, and returns the
// URL the client fetches it from.
func (h *Handler) synthesizeReply(r *http.Request, text string) (string, error) {
	ttsStart := time.Now()
	audio, err := h.tts.Synthesize(r.Context(), text)
	observability.RecordStage("tts", time.Since(ttsStart))
	if err != nil {
		return "", err
	}

	name, err := h.files.SaveReply(audio)
	if err != nil {
		return "", err
	}
	return "/static/" + name, nil
}
