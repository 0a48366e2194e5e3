package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"instituteos.app/internal/audit"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/tenancy"
)

func (a *API) handleListInstitutes(w http.ResponseWriter, r *http.Request) {
	list, err := a.Institutes.List(r.Context(), principalOf(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []institute.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"institutes": list})
}

func (a *API) handleCreateInstitute(w http.ResponseWriter, r *http.Request) {
	var in institute.ProvisionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.Institutes.Provision(r.Context(), principalOf(r), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventInstituteCreated,
		zap.String("created_institute_id", res.Institute.ID),
		zap.String("domain", res.Institute.Domain),
		zap.String("admin_id", res.AdminID))
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleGetInstitute(w http.ResponseWriter, r *http.Request) {
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	inst, err := a.Institutes.Get(r.Context(), instituteID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *API) handleUpdateInstitute(w http.ResponseWriter, r *http.Request) {
	var in institute.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	inst, err := a.Institutes.Update(r.Context(), principalOf(r), instituteID, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventInstituteUpdated,
		zap.String("name", inst.Name),
		zap.String("domain", inst.Domain))
	writeJSON(w, http.StatusOK, inst)
}
