package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dstiny-bridge/internal/scenes"
)

// SceneLevel is one fan or flap scene and its configured level.
// Level is nil when the register has never been written.
type SceneLevel struct {
	Scene    int    `json:"scene"`
	Channel  string `json:"channel"`
	Register int    `json:"register"`
	Level    *int   `json:"level"`
}

type setSceneRequest struct {
	Level *int `json:"level"`
}

func channelName(c scenes.Channel) string {
	switch c {
	case scenes.ChannelFan:
		return "fan"
	case scenes.ChannelFlap:
		return "flap"
	default:
		return ""
	}
}

// sceneIDs lists every fan and flap scene in ascending order.
func sceneIDs() []int {
	ids := make([]int, 0, len(scenes.FanSceneRegisters)+len(scenes.FlapSceneRegisters))
	for id := range scenes.FanSceneRegisters {
		ids = append(ids, id)
	}
	for id := range scenes.FlapSceneRegisters {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Server) loadScene(r *http.Request, scene int) (SceneLevel, error) {
	channel, reg, _ := scenes.SceneRegister(scene)
	out := SceneLevel{Scene: scene, Channel: channelName(channel), Register: reg}

	level, err := s.deps.Store.Get(r.Context(), scenes.FanFlapSection, reg)
	switch {
	case err == nil:
		out.Level = &level
	case !errors.Is(err, scenes.ErrNotFound):
		return out, err
	}
	return out, nil
}

// sceneParam parses {scene}; ok is false after an error has been written.
func sceneParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	scene, err := strconv.Atoi(chi.URLParam(r, "scene"))
	if err != nil {
		writeBadRequest(w, "scene must be an integer")
		return 0, false
	}
	if _, _, found := scenes.SceneRegister(scene); !found {
		writeNotFound(w, fmt.Sprintf("scene %d is not a fan or flap scene", scene))
		return 0, false
	}
	return scene, true
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	ids := sceneIDs()
	out := make([]SceneLevel, 0, len(ids))
	for _, id := range ids {
		sl, err := s.loadScene(r, id)
		if err != nil {
			s.deps.Logger.Error("failed to read scene level", "scene", id, "error", err)
			writeInternalError(w, "failed to read scene levels")
			return
		}
		out = append(out, sl)
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": out, "count": len(out)})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	scene, ok := sceneParam(w, r)
	if !ok {
		return
	}
	sl, err := s.loadScene(r, scene)
	if err != nil {
		s.deps.Logger.Error("failed to read scene level", "scene", scene, "error", err)
		writeInternalError(w, "failed to read scene level")
		return
	}
	writeJSON(w, http.StatusOK, sl)
}

func (s *Server) handleSetScene(w http.ResponseWriter, r *http.Request) {
	scene, ok := sceneParam(w, r)
	if !ok {
		return
	}

	var req setSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "level is required")
		return
	}

	_, reg, _ := scenes.SceneRegister(scene)
	if err := s.deps.Store.Set(r.Context(), scenes.FanFlapSection, reg, *req.Level); err != nil {
		if errors.Is(err, scenes.ErrInvalidLevel) {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "level must be between 0 and 100")
			return
		}
		s.deps.Logger.Error("failed to store scene level", "scene", scene, "error", err)
		writeInternalError(w, "failed to store scene level")
		return
	}

	s.deps.Logger.Info("scene level updated", "scene", scene, "register", reg, "level", *req.Level, "subject", subject(r))

	sl, err := s.loadScene(r, scene)
	if err != nil {
		writeInternalError(w, "failed to read scene level")
		return
	}
	writeJSON(w, http.StatusOK, sl)
}
