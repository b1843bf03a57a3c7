package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/goailoop/ailoop/channel"
	"github.com/goailoop/ailoop/model"
	"github.com/goailoop/ailoop/task"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// httpRoutes builds the REST API handler that runs on the port+1 listener.
func (s *Server) httpRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/channels", s.listChannels)
	mux.HandleFunc("GET /api/channels/{channel}/messages", s.channelMessages)
	mux.HandleFunc("GET /api/channels/{channel}/stats", s.channelStats)
	mux.HandleFunc("GET /api/stats", s.globalStats)
	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("POST /api/v1/messages", s.postMessage)
	mux.HandleFunc("GET /api/v1/messages/{id}", s.getMessage)
	mux.HandleFunc("POST /api/v1/messages/{id}/response", s.postMessageResponse)

	mux.HandleFunc("POST /api/v1/tasks", s.createTask)
	mux.HandleFunc("GET /api/v1/tasks", s.listTasks)
	mux.HandleFunc("GET /api/v1/tasks/ready", s.readyTasks)
	mux.HandleFunc("GET /api/v1/tasks/blocked", s.blockedTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /api/v1/tasks/{id}", s.updateTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}/dependencies", s.taskDependencies)
	mux.HandleFunc("POST /api/v1/tasks/{id}/dependencies", s.addTaskDependency)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}/dependencies/{dep_id}", s.removeTaskDependency)
	mux.HandleFunc("GET /api/v1/tasks/{id}/graph", s.taskGraph)

	mux.HandleFunc("POST /api/v1/workflows/{name}/start", s.startWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.workflowStatus)
	mux.HandleFunc("GET /api/v1/workflows/metrics", s.workflowMetrics)
	mux.HandleFunc("GET /api/v1/workflows/{id}/output", s.workflowOutput)

	return mux
}

// ---- channels / stats ----

type channelInfo struct {
	Name         string     `json:"name"`
	MessageCount int        `json:"message_count"`
	OldestMessage *time.Time `json:"oldest_message,omitempty"`
	NewestMessage *time.Time `json:"newest_message,omitempty"`
}

func (s *Server) buildChannelInfo(name string) channelInfo {
	info := channelInfo{Name: name, MessageCount: s.history.Stats(name).MessageCount}
	all := s.history.Recent(name, channel.HistoryCap)
	if len(all) > 0 {
		oldest := all[0].Timestamp
		newest := all[len(all)-1].Timestamp
		info.OldestMessage = &oldest
		info.NewestMessage = &newest
	}
	return info
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	names := s.history.Channels()
	sort.Strings(names)
	infos := make([]channelInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, s.buildChannelInfo(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": infos})
}

func (s *Server) channelMessages(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs := s.history.Recent(name, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     name,
		"messages":    msgs,
		"total_count": s.history.Stats(name).MessageCount,
	})
}

func (s *Server) channelStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	info := s.buildChannelInfo(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":        name,
		"message_count":  info.MessageCount,
		"oldest_message": info.OldestMessage,
		"newest_message": info.NewestMessage,
	})
}

func (s *Server) globalStats(w http.ResponseWriter, r *http.Request) {
	names := s.history.Channels()
	total := 0
	for _, n := range names {
		total += s.history.Stats(n).MessageCount
	}
	bstats := s.broadcast.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_messages":       total,
		"active_channels":      len(names),
		"active_connections":   bstats.TotalViewers,
		"total_queue_size":     s.channels.TotalQueueSize(),
		"total_connection_count": s.channels.TotalConnectionCount(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	bstats := s.broadcast.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            version,
		"uptime":             s.uptime(),
		"active_connections": bstats.TotalViewers,
		"queue_size":         s.channels.TotalQueueSize(),
		"active_channels":    len(s.channels.ActiveChannels()),
	})
}

// ---- messages ----

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := channel.Validate(msg.Channel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.history.Append(msg)
	if msg.IsPrompt() {
		s.broadcast.BroadcastToViewersOnly(msg)
	} else {
		s.broadcast.BroadcastMessage(msg)
	}
	s.channels.Enqueue(msg.Channel, msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	msg, ok := s.history.ByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) postMessageResponse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	original, ok := s.history.ByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	var body struct {
		Answer       *string            `json:"answer"`
		ResponseType model.ResponseType `json:"response_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.ResponseType == "" {
		body.ResponseType = model.ResponseText
	}

	value, idx := resolveChoice(derefOrEmpty(body.Answer), original.Content.Choices)
	resp := model.New(original.Channel, model.SenderHuman, model.Content{
		Type:         model.ContentResponse,
		Answer:       body.Answer,
		ResponseType: body.ResponseType,
		ChoiceIndex:  idx,
		ChoiceValue:  value,
	})
	correlation := original.ID
	resp.CorrelationID = &correlation
	s.history.Append(resp)
	s.broadcast.BroadcastMessage(resp)
	s.prompts.SubmitReplyForMessage(original.ID, body.Answer, body.ResponseType)

	writeJSON(w, http.StatusOK, resp)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ---- tasks ----

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Channel     string         `json:"channel"`
		Assignee    string         `json:"assignee"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := channel.Validate(body.Channel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := s.tasks.CreateWithMeta(body.Channel, body.Title, body.Description, body.Assignee, body.Metadata)

	event := model.New(body.Channel, model.SenderSystem, model.Content{
		Type:  model.ContentTaskCreate,
		TaskID: t.ID,
		Title: t.Title,
		State: string(t.State),
	})
	s.history.Append(event)
	s.broadcast.BroadcastMessage(event)

	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ch := r.URL.Query().Get("channel")
	if err := channel.Validate(ch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stateFilter := model.TaskState(r.URL.Query().Get("state"))

	all := s.tasks.All(ch)
	tasks := make([]model.Task, 0, len(all))
	for _, t := range all {
		if stateFilter != "" && t.State != stateFilter {
			continue
		}
		tasks = append(tasks, t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     ch,
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (s *Server) readyTasks(w http.ResponseWriter, r *http.Request) {
	ch := r.URL.Query().Get("channel")
	tasks := s.tasks.Ready(ch)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     ch,
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (s *Server) blockedTasks(w http.ResponseWriter, r *http.Request) {
	ch := r.URL.Query().Get("channel")
	tasks := s.tasks.Blocked(ch)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     ch,
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.tasks.Get(ch, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	var body struct {
		State model.TaskState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t, err := s.tasks.UpdateState(ch, id, body.State)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	event := model.New(ch, model.SenderSystem, model.Content{
		Type:   model.ContentTaskUpdate,
		TaskID: t.ID,
		State:  string(t.State),
	})
	s.history.Append(event)
	s.broadcast.BroadcastMessage(event)

	writeJSON(w, http.StatusOK, t)
}

func (s *Server) taskDependencies(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.tasks.Get(ch, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":      t.ID,
		"depends_on":   t.DependsOn,
		"blocking_for": t.BlockingFor,
	})
}

func (s *Server) addTaskDependency(w http.ResponseWriter, r *http.Request) {
	childID, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	var body struct {
		ParentID       uuid.UUID            `json:"parent_id"`
		DependencyType model.DependencyType `json:"dependency_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.DependencyType == "" {
		body.DependencyType = model.DependencyBlocks
	}
	if err := s.tasks.AddDependency(ch, childID, body.ParentID, body.DependencyType); err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	event := model.New(ch, model.SenderSystem, model.Content{
		Type:     model.ContentTaskDependencyAdd,
		TaskID:   childID,
		ParentID: body.ParentID,
	})
	s.history.Append(event)
	s.broadcast.BroadcastMessage(event)

	t, _ := s.tasks.Get(ch, childID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) removeTaskDependency(w http.ResponseWriter, r *http.Request) {
	childID, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	parentID, err := uuid.Parse(r.PathValue("dep_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dependency id")
		return
	}
	if err := s.tasks.RemoveDependency(ch, childID, parentID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	event := model.New(ch, model.SenderSystem, model.Content{
		Type:     model.ContentTaskDependencyDel,
		TaskID:   childID,
		ParentID: parentID,
	})
	s.history.Append(event)
	s.broadcast.BroadcastMessage(event)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) taskGraph(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	g, err := s.tasks.Graph(ch, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// pathTaskID extracts {id} and the required ?channel= query param shared by
// every single-task route, writing the appropriate error response itself.
func (s *Server) pathTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return uuid.UUID{}, "", false
	}
	ch := r.URL.Query().Get("channel")
	if ch == "" {
		writeError(w, http.StatusBadRequest, "channel query parameter is required")
		return uuid.UUID{}, "", false
	}
	return id, ch, true
}

// ---- workflows (additive: not present in the original API surface) ----

func (s *Server) startWorkflow(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no workflows registered")
		return
	}
	name := r.PathValue("name")
	var body struct {
		Initiator string `json:"initiator"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Initiator == "" {
		body.Initiator = "api"
	}

	id, err := s.orchestrator.StartWorkflow(r.Context(), name, body.Initiator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"execution_id": id})
}

func (s *Server) workflowStatus(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no workflows registered")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	status, ok := s.orchestrator.GetExecutionStatus(id)
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"status":       status,
		"running":      s.orchestrator.IsRunning(id),
	})
}

func (s *Server) workflowMetrics(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no workflows registered")
		return
	}
	name := r.URL.Query().Get("workflow_name")
	writeJSON(w, http.StatusOK, s.orchestrator.Metrics(name))
}

func (s *Server) workflowOutput(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no workflows registered")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}
	state := r.URL.Query().Get("state")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"output":       s.orchestrator.Output(id, state, offset, limit),
	})
}
