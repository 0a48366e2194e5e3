package httpapi

import (
	"net/http"
	"strconv"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/task"
	"instituteos.app/internal/tenancy"
)

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		Status:       task.Status(q.Get("status")),
		AssignedToID: q.Get("assignedToId"),
	}
	for key, dst := range map[string]*int{"page": &f.Page, "pageSize": &f.PageSize} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, key+" must be a positive integer")
			return
		}
		*dst = n
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	page, err := a.Tasks.List(r.Context(), instituteID, f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	t, err := a.Tasks.Create(r.Context(), instituteID, auth.SubjectFromContext(r.Context()), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleSubTasks(w http.ResponseWriter, r *http.Request) {
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	list, err := a.Tasks.SubTasks(r.Context(), instituteID, r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

type statusRequest struct {
	Status task.Status `json:"status"`
}

func (a *API) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	t, err := a.Tasks.UpdateStatus(r.Context(), instituteID, r.PathValue("id"), req.Status)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
