package handler

import (
	"encoding/json"
	"net/http"
	"time"

	pkgutils "example.com/multiping/pkg/utils"
)

type VersionResponse struct {
	Build     *pkgutils.BuildVersion `json:"build,omitempty"`
	Summary   string                 `json:"summary"`
	StartedAt *time.Time             `json:"started_at,omitempty"`
	Targets   int                    `json:"targets"`
}

func NewVersionHandler(sharedCtx *pkgutils.GlobalSharedContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		markAsServed(r)
		resp := VersionResponse{
			Build:   sharedCtx.BuildVersion,
			Summary: sharedCtx.BuildVersion.String(),
			Targets: sharedCtx.NumTargets,
		}
		if !sharedCtx.StartedAt.IsZero() {
			resp.StartedAt = &sharedCtx.StartedAt
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
