package httpapi

import (
	"net/http"

	"instituteos.app/internal/pricing"
	"instituteos.app/internal/student"
	"instituteos.app/internal/tenancy"
)

func (a *API) handlePricingCalculate(w http.ResponseWriter, r *http.Request) {
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	calc, err := a.Pricing.ForInstitute(r.Context(), instituteID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

type simulateRequest struct {
	ActiveModules []string `json:"activeModules"`
	StudentCount  int      `json:"studentCount"`
}

func (a *API) handlePricingSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.StudentCount < 0 {
		writeError(w, r, http.StatusBadRequest, "studentCount must not be negative")
		return
	}
	writeJSON(w, http.StatusOK, pricing.Calculate(req.ActiveModules, req.StudentCount))
}

func (a *API) handleListStudents(w http.ResponseWriter, r *http.Request) {
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	list, err := a.Students.List(r.Context(), instituteID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []student.Student{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": list})
}

func (a *API) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var in student.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	st, err := a.Students.Create(r.Context(), instituteID, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}
