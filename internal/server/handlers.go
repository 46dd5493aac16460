package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/drydock/internal/challenge"
	"github.com/zulandar/drydock/internal/lifecycle"
	"github.com/zulandar/drydock/internal/notify"
	"github.com/zulandar/drydock/internal/policy"
	"github.com/zulandar/drydock/internal/settings"
)

// handlers carries the wired dependencies for all routes.
type handlers struct {
	opts *StartOpts
}

// chalRequest is the body of every participant route.
type chalRequest struct {
	ChalID uint `json:"chal_id"`
}

// killRequest is the body of the admin kill route.
type killRequest struct {
	ContainerID string `json:"container_id"`
}

// writeError maps a lifecycle error to a participant-facing response.
// Validation and conflict failures carry an explanatory message;
// infrastructure failures are reported generically and logged in detail.
func (h *handlers) writeError(c *gin.Context, err error) {
	var nf *lifecycle.NotFoundError
	var conflict *lifecycle.ConflictError
	var missing *settings.MissingKeyError

	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s not found", titleKind(nf.Kind))})
	case errors.As(err, &conflict):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Stop other instance running (%s)", conflict.BlockingChallenge),
		})
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Missing required field: %s", missing.Key)})
	default:
		h.opts.Log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error has occurred."})
	}
}

func titleKind(kind string) string {
	switch kind {
	case "challenge":
		return "Challenge"
	case "instance":
		return "Instance"
	}
	return "Resource"
}

// running reports the registry's belief about the owner's instance for a
// challenge.
func (h *handlers) running(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	userID, teamID := identity(c)
	status, err := h.opts.Orchestrator.Status(req.ChalID, userID, teamID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// request creates an instance, or returns the one already running.
func (h *handlers) request(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	userID, teamID := identity(c)
	result, err := h.opts.Orchestrator.Create(c.Request.Context(), req.ChalID, userID, teamID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result.Status == lifecycle.ResultCreated {
		h.post(c, notify.Event{
			Title:    "Instance created",
			Severity: "success",
			Fields: []notify.Field{
				{Name: "Challenge", Value: strconv.Itoa(int(req.ChalID))},
				{Name: "User", Value: strconv.Itoa(int(userID))},
				{Name: "Port", Value: strconv.Itoa(result.Port)},
			},
		})
	}
	c.JSON(http.StatusOK, result)
}

// renew extends the instance's expiry by one TTL.
func (h *handlers) renew(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	userID, teamID := identity(c)
	result, err := h.opts.Orchestrator.Renew(req.ChalID, userID, teamID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Instance renewed", "expires": result.Expires})
}

// reset stops the owner's instance for the challenge, if any, then creates
// a fresh one.
func (h *handlers) reset(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	userID, teamID := identity(c)
	result, err := h.opts.Orchestrator.Reset(c.Request.Context(), req.ChalID, userID, teamID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// stop terminates the owner's instance for the challenge.
func (h *handlers) stop(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	userID, teamID := identity(c)

	snap, err := h.opts.Store.Snapshot()
	if err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "settings", Err: err})
		return
	}
	scope := policy.Scope{Mode: snap.Mode, UserID: userID, TeamID: teamID}
	inst, err := h.opts.Registry.ForChallenge(req.ChalID, scope)
	if err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "presence lookup", Err: err})
		return
	}
	if inst == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No running instance found."})
		return
	}
	if err := h.opts.Orchestrator.Stop(c.Request.Context(), inst.InstanceID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Instance stopped"})
}

// kill terminates any instance by ID, bypassing ownership scoping.
func (h *handlers) kill(c *gin.Context) {
	var req killRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ContainerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.opts.Orchestrator.AdminKill(c.Request.Context(), req.ContainerID); err != nil {
		h.writeError(c, err)
		return
	}
	h.post(c, notify.Event{
		Title:    "Instance killed by admin",
		Severity: "warning",
		Fields:   []notify.Field{{Name: "Instance", Value: req.ContainerID}},
	})
	c.JSON(http.StatusOK, gin.H{"success": "Instance killed"})
}

// purge kills and removes every instance, best-effort.
func (h *handlers) purge(c *gin.Context) {
	purged, err := h.opts.Orchestrator.Purge(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.post(c, notify.Event{
		Title:    "All instances purged",
		Body:     fmt.Sprintf("%d instances removed by admin.", purged),
		Severity: "warning",
	})
	c.JSON(http.StatusOK, gin.H{"success": "Purged all instances", "purged": purged})
}

// images lists image references available to the runtime.
func (h *handlers) images(c *gin.Context) {
	images, err := h.opts.Driver.Images(c.Request.Context())
	if err != nil {
		h.opts.Log.Printf("server: list images: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error has occurred."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// updateSettings applies a bulk settings update from the settings form. All
// required keys must be present before anything is written.
func (h *handlers) updateSettings(c *gin.Context) {
	values := make(map[string]string, len(settings.RequiredKeys))
	for _, key := range settings.RequiredKeys {
		val, ok := c.GetPostForm(key)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Missing required field: %s", key)})
			return
		}
		values[key] = val
	}
	if err := h.opts.Store.Update(values); err != nil {
		h.writeError(c, err)
		return
	}
	h.opts.Log.Printf("server: settings updated by admin")
	c.Redirect(http.StatusFound, "/settings")
}

// dashboard renders the live-instance overview.
func (h *handlers) dashboard(c *gin.Context) {
	insts, err := h.opts.Registry.All()
	if err != nil {
		h.opts.Log.Printf("server: dashboard: %v", err)
		c.String(http.StatusInternalServerError, "An error occurred while loading the dashboard.")
		return
	}

	connected := h.opts.Driver.Ping(c.Request.Context()) == nil

	type instanceView struct {
		InstanceID  string
		ChallengeID uint
		UserID      uint
		TeamID      uint
		Port        int
		CreatedAt   int64
		ExpiresAt   int64
		Running     bool
	}
	views := make([]instanceView, 0, len(insts))
	for _, inst := range insts {
		running := false
		if connected {
			if alive, err := h.opts.Driver.IsRunning(c.Request.Context(), inst.InstanceID); err == nil {
				running = alive
			}
		}
		views = append(views, instanceView{
			InstanceID:  inst.InstanceID,
			ChallengeID: inst.ChallengeID,
			UserID:      inst.UserID,
			TeamID:      inst.TeamID,
			Port:        inst.Port,
			CreatedAt:   inst.CreatedAt,
			ExpiresAt:   inst.ExpiresAt,
			Running:     running,
		})
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"instances":  views,
		"connected":  connected,
		"assignment": h.opts.Store.Get(settings.KeyAssignment),
	})
}

// challenges lists the catalog with current point values.
func (h *handlers) challenges(c *gin.Context) {
	all, err := h.opts.Catalog.All()
	if err != nil {
		h.opts.Log.Printf("server: list challenges: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error has occurred."})
		return
	}
	out := make([]map[string]interface{}, 0, len(all))
	for i := range all {
		ch := &all[i]
		typ, err := challenge.TypeFor(ch.Type)
		if err != nil {
			h.opts.Log.Printf("server: challenge %s: %v", ch.Name, err)
			continue
		}
		view := typ.Read(ch)
		if value, err := typ.ComputeValue(ch); err == nil {
			view["value"] = value
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"challenges": out})
}

// solve records a correct submission and returns the challenge's new value.
func (h *handlers) solve(c *gin.Context) {
	var req chalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ch, err := h.opts.Catalog.ByID(req.ChalID)
	if err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "challenge lookup", Err: err})
		return
	}
	if ch == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge not found"})
		return
	}
	typ, err := challenge.TypeFor(ch.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}
	userID, teamID := identity(c)
	if err := typ.Solve(ch, userID, teamID); err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "record solve", Err: err})
		return
	}
	value, err := typ.ComputeValue(ch)
	if err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "compute value", Err: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Solve recorded", "value": value})
}

// updateChallengeRequest is the body of the admin challenge update route.
type updateChallengeRequest struct {
	ChalID uint              `json:"chal_id"`
	Fields map[string]string `json:"fields"`
}

// updateChallenge applies authoring-side field edits through the challenge
// type's capability set.
func (h *handlers) updateChallenge(c *gin.Context) {
	var req updateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChalID == 0 || len(req.Fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	ch, err := h.opts.Catalog.ByID(req.ChalID)
	if err != nil {
		h.writeError(c, &lifecycle.StorageError{Op: "challenge lookup", Err: err})
		return
	}
	if ch == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge not found"})
		return
	}
	typ, err := challenge.TypeFor(ch.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := typ.Update(ch, req.Fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "Challenge updated"})
}

// settingsPage renders the settings form.
func (h *handlers) settingsPage(c *gin.Context) {
	c.HTML(http.StatusOK, "settings.html", gin.H{
		"settings": h.opts.Store.All(),
	})
}

func (h *handlers) post(c *gin.Context, ev notify.Event) {
	if h.opts.Notifier == nil {
		return
	}
	if err := h.opts.Notifier.Post(c.Request.Context(), ev); err != nil {
		h.opts.Log.Printf("server: notify: %v", err)
	}
}
