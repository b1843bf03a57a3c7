package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/goailoop/ailoop/model"
)

func TestPostMessageRejectsInvalidChannel(t *testing.T) {
	s := newTestServer(t)
	body := `{"channel":"admin","content":{"type":"notification","text":"hi"}}`
	req := httptest.NewRequest("POST", "/api/v1/messages", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	s.postMessage(rr, req)
	if rr.Code != 400 {
		t.Fatalf("code = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestPostMessageThenGetByID(t *testing.T) {
	s := newTestServer(t)
	body := `{"channel":"demo","sender_type":"agent","content":{"type":"notification","text":"hi"}}`
	req := httptest.NewRequest("POST", "/api/v1/messages", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	s.postMessage(rr, req)
	if rr.Code != 201 {
		t.Fatalf("code = %d, body = %s", rr.Code, rr.Body.String())
	}

	var created model.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	req2 := httptest.NewRequest("GET", "/api/v1/messages/"+created.ID.String(), nil)
	req2.SetPathValue("id", created.ID.String())
	rr2 := httptest.NewRecorder()
	s.getMessage(rr2, req2)
	if rr2.Code != 200 {
		t.Fatalf("code = %d", rr2.Code)
	}
}

func TestPostMessageResponseResolvesPendingPrompt(t *testing.T) {
	s := newTestServer(t)
	question := model.New("demo", model.SenderAgent, model.Content{
		Type:    model.ContentQuestion,
		Text:    "proceed?",
		Choices: []string{"yes", "no"},
	})
	s.history.Append(question)

	rx, _, _ := s.prompts.Register(question.ID, nil, "question")

	body, _ := json.Marshal(map[string]any{"answer": "yes"})
	req := httptest.NewRequest("POST", "/api/v1/messages/"+question.ID.String()+"/response", bytes.NewReader(body))
	req.SetPathValue("id", question.ID.String())
	rr := httptest.NewRecorder()
	s.postMessageResponse(rr, req)
	if rr.Code != 200 {
		t.Fatalf("code = %d, body = %s", rr.Code, rr.Body.String())
	}

	select {
	case result := <-rx:
		if result.ChoiceValue != "yes" || result.ChoiceIndex == nil || *result.ChoiceIndex != 0 {
			t.Errorf("result = %+v", result)
		}
	default:
		t.Error("expected the pending prompt to resolve")
	}
}

func TestCreateAndUpdateTask(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"title": "ship it", "channel": "demo"})
	req := httptest.NewRequest("POST", "/api/v1/tasks", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.createTask(rr, req)
	if rr.Code != 201 {
		t.Fatalf("code = %d, body = %s", rr.Code, rr.Body.String())
	}

	var created model.Task
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	updateBody, _ := json.Marshal(map[string]any{"state": "done"})
	req2 := httptest.NewRequest("PUT", "/api/v1/tasks/"+created.ID.String()+"?channel=demo", bytes.NewReader(updateBody))
	req2.SetPathValue("id", created.ID.String())
	rr2 := httptest.NewRecorder()
	s.updateTask(rr2, req2)
	if rr2.Code != 200 {
		t.Fatalf("code = %d, body = %s", rr2.Code, rr2.Body.String())
	}

	var updated model.Task
	json.Unmarshal(rr2.Body.Bytes(), &updated)
	if updated.State != model.TaskDone {
		t.Errorf("state = %s", updated.State)
	}
}

func TestTaskDependencyLifecycle(t *testing.T) {
	s := newTestServer(t)
	parent := s.tasks.Create("demo", "parent", "")
	child := s.tasks.Create("demo", "child", "")

	addBody, _ := json.Marshal(map[string]any{"parent_id": parent.ID})
	req := httptest.NewRequest("POST", "/api/v1/tasks/"+child.ID.String()+"/dependencies?channel=demo", bytes.NewReader(addBody))
	req.SetPathValue("id", child.ID.String())
	rr := httptest.NewRecorder()
	s.addTaskDependency(rr, req)
	if rr.Code != 201 {
		t.Fatalf("code = %d, body = %s", rr.Code, rr.Body.String())
	}

	req2 := httptest.NewRequest("GET", "/api/v1/tasks/"+child.ID.String()+"/graph?channel=demo", nil)
	req2.SetPathValue("id", child.ID.String())
	rr2 := httptest.NewRecorder()
	s.taskGraph(rr2, req2)
	if rr2.Code != 200 {
		t.Fatalf("code = %d, body = %s", rr2.Code, rr2.Body.String())
	}
	var graph model.DependencyGraph
	json.Unmarshal(rr2.Body.Bytes(), &graph)
	if len(graph.Parents) != 1 || graph.Parents[0].ID != parent.ID {
		t.Errorf("graph = %+v", graph)
	}

	req3 := httptest.NewRequest("DELETE", "/api/v1/tasks/"+child.ID.String()+"/dependencies/"+parent.ID.String()+"?channel=demo", nil)
	req3.SetPathValue("id", child.ID.String())
	req3.SetPathValue("dep_id", parent.ID.String())
	rr3 := httptest.NewRecorder()
	s.removeTaskDependency(rr3, req3)
	if rr3.Code != 204 {
		t.Fatalf("code = %d", rr3.Code)
	}
}

func TestListTasksFiltersByState(t *testing.T) {
	s := newTestServer(t)
	a := s.tasks.Create("demo", "a", "")
	s.tasks.Create("demo", "b", "")
	s.tasks.UpdateState("demo", a.ID, model.TaskDone)

	req := httptest.NewRequest("GET", "/api/v1/tasks?channel=demo&state=done", nil)
	rr := httptest.NewRecorder()
	s.listTasks(rr, req)
	if rr.Code != 200 {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp struct {
		Tasks []model.Task `json:"tasks"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != a.ID {
		t.Errorf("tasks = %+v", resp.Tasks)
	}
}

func TestWorkflowRoutesReport503WithoutOrchestrator(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/workflows/metrics", nil)
	rr := httptest.NewRecorder()
	s.workflowMetrics(rr, req)
	if rr.Code != 503 {
		t.Fatalf("code = %d", rr.Code)
	}
}
