// Package http exposes the share controller over JSON POST endpoints.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/datafoundry/shareflow/share"
	"github.com/datafoundry/shareflow/share/controller"
)

func Handler(c *controller.Controller) http.Handler {
	server := &server{
		controller: c,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", server.getHealth).Methods("GET").Name("GetHealth")

	// share lifecycle endpoints.
	router.HandleFunc("/create-share", server.postCreateShare).Methods("POST").Name("PostCreateShare")
	router.HandleFunc("/share", server.postShare).Methods("POST").Name("PostShare")
	router.HandleFunc("/share-statistics", server.postShareStatistics).Methods("POST").Name("PostShareStatistics")
	router.HandleFunc("/delete-share", server.postDeleteShare).Methods("POST").Name("PostDeleteShare")
	router.HandleFunc("/submit-share", server.postSubmitShare).Methods("POST").Name("PostSubmitShare")
	router.HandleFunc("/approve-share", server.postApproveShare).Methods("POST").Name("PostApproveShare")
	router.HandleFunc("/reject-share", server.postRejectShare).Methods("POST").Name("PostRejectShare")

	// item endpoints.
	router.HandleFunc("/add-item", server.postAddItem).Methods("POST").Name("PostAddItem")
	router.HandleFunc("/remove-item", server.postRemoveItem).Methods("POST").Name("PostRemoveItem")
	router.HandleFunc("/revoke-items", server.postRevokeItems).Methods("POST").Name("PostRevokeItems")
	router.HandleFunc("/verify-items", server.postVerifyItems).Methods("POST").Name("PostVerifyItems")
	router.HandleFunc("/reapply-items", server.postReapplyItems).Methods("POST").Name("PostReapplyItems")

	// extension endpoints.
	router.HandleFunc("/submit-extension", server.postSubmitExtension).Methods("POST").Name("PostSubmitExtension")
	router.HandleFunc("/approve-extension", server.postApproveExtension).Methods("POST").Name("PostApproveExtension")
	router.HandleFunc("/reject-extension", server.postRejectExtension).Methods("POST").Name("PostRejectExtension")
	router.HandleFunc("/cancel-extension", server.postCancelExtension).Methods("POST").Name("PostCancelExtension")

	// purpose endpoints.
	router.HandleFunc("/update-request-purpose", server.postUpdateRequestPurpose).Methods("POST").Name("PostUpdateRequestPurpose")
	router.HandleFunc("/update-reject-purpose", server.postUpdateRejectPurpose).Methods("POST").Name("PostUpdateRejectPurpose")
	router.HandleFunc("/update-extension-purpose", server.postUpdateExtensionPurpose).Methods("POST").Name("PostUpdateExtensionPurpose")

	// registry endpoints.
	router.HandleFunc("/register-dataset", server.postRegisterDataset).Methods("POST").Name("PostRegisterDataset")
	router.HandleFunc("/register-environment", server.postRegisterEnvironment).Methods("POST").Name("PostRegisterEnvironment")
	router.HandleFunc("/notifications", server.postNotifications).Methods("POST").Name("PostNotifications")

	return router
}

type server struct {
	controller *controller.Controller
}

// GET /health
func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ShareRequest addresses one share by URI.
type ShareRequest struct {
	ShareURI share.ShareURI `json:"shareUri"`
}

// ItemsRequest addresses a set of a share's items.
type ItemsRequest struct {
	ShareURI share.ShareURI       `json:"shareUri"`
	ItemURIs []share.ShareItemURI `json:"itemUris"`
}

// ShareResponse carries a share and its items.
type ShareResponse struct {
	Share *share.ShareObject `json:"share"`
	Items share.ShareItems   `json:"items"`
}

// POST /create-share
func (s *server) postCreateShare(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := &controller.CreateShareRequest{}
	if err := json.NewDecoder(body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := s.controller.CreateShareObject(ctx, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /share
func (s *server) postShare(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ShareRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, items, err := s.controller.GetShareObject(ctx, req.ShareURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := ShareResponse{Share: so, Items: items}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /share-statistics
func (s *server) postShareStatistics(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ShareRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.controller.ShareStatistics(ctx, req.ShareURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /delete-share
func (s *server) postDeleteShare(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ShareRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.controller.DeleteShareObject(ctx, req.ShareURI); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /submit-share
func (s *server) postSubmitShare(w http.ResponseWriter, r *http.Request) {
	s.shareTransition(w, r, s.controller.SubmitShareObject)
}

// POST /approve-share
func (s *server) postApproveShare(w http.ResponseWriter, r *http.Request) {
	s.shareTransition(w, r, s.controller.ApproveShareObject)
}

// POST /reject-share
func (s *server) postRejectShare(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareURI      share.ShareURI `json:"shareUri"`
		RejectPurpose string         `json:"rejectPurpose"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := s.controller.RejectShareObject(ctx, req.ShareURI, req.RejectPurpose)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /add-item
func (s *server) postAddItem(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareURI share.ShareURI `json:"shareUri"`
		controller.AddItemRequest
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := s.controller.AddSharedItem(ctx, req.ShareURI, &req.AddItemRequest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(item); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /remove-item
func (s *server) postRemoveItem(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareItemURI share.ShareItemURI `json:"shareItemUri"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.controller.RemoveSharedItem(ctx, req.ShareItemURI); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /revoke-items
func (s *server) postRevokeItems(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ItemsRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := s.controller.RevokeItemsShareObject(ctx, req.ShareURI, req.ItemURIs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /verify-items
func (s *server) postVerifyItems(w http.ResponseWriter, r *http.Request) {
	s.itemsOperation(w, r, s.controller.VerifyItemsShareObject)
}

// POST /reapply-items
func (s *server) postReapplyItems(w http.ResponseWriter, r *http.Request) {
	s.itemsOperation(w, r, s.controller.ReapplyItemsShareObject)
}

// POST /submit-extension
func (s *server) postSubmitExtension(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareURI         share.ShareURI `json:"shareUri"`
		Expiry           *time.Time     `json:"expiry,omitempty"`
		ExtensionPurpose string         `json:"extensionPurpose"`
		NonExpirable     bool           `json:"nonExpirable"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := s.controller.SubmitShareExtension(ctx, req.ShareURI, req.Expiry, req.ExtensionPurpose, req.NonExpirable)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /approve-extension
func (s *server) postApproveExtension(w http.ResponseWriter, r *http.Request) {
	s.shareTransition(w, r, s.controller.ApproveShareExtension)
}

// POST /reject-extension
func (s *server) postRejectExtension(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareURI      share.ShareURI `json:"shareUri"`
		RejectPurpose string         `json:"rejectPurpose"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := s.controller.RejectShareExtension(ctx, req.ShareURI, req.RejectPurpose)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /cancel-extension
func (s *server) postCancelExtension(w http.ResponseWriter, r *http.Request) {
	s.shareTransition(w, r, s.controller.CancelShareExtension)
}

// POST /update-request-purpose
func (s *server) postUpdateRequestPurpose(w http.ResponseWriter, r *http.Request) {
	s.purposeUpdate(w, r, s.controller.UpdateRequestPurpose)
}

// POST /update-reject-purpose
func (s *server) postUpdateRejectPurpose(w http.ResponseWriter, r *http.Request) {
	s.purposeUpdate(w, r, s.controller.UpdateRejectPurpose)
}

// POST /update-extension-purpose
func (s *server) postUpdateExtensionPurpose(w http.ResponseWriter, r *http.Request) {
	s.purposeUpdate(w, r, s.controller.UpdateExtensionPurpose)
}

// POST /register-dataset
func (s *server) postRegisterDataset(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	ds := &share.Dataset{}
	if err := json.NewDecoder(body).Decode(ds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.controller.RegisterDataset(ctx, ds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(ds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /register-environment
func (s *server) postRegisterEnvironment(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	env := &share.Environment{}
	if err := json.NewDecoder(body).Decode(env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.controller.RegisterEnvironment(ctx, env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// POST /notifications
func (s *server) postNotifications(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		Recipient string `json:"recipient"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notifications, err := s.controller.Notifications(ctx, req.Recipient)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(notifications); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// shareTransition serves the operations that take a share URI and return the
// updated share.
func (s *server) shareTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, uri share.ShareURI) (*share.ShareObject, error)) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ShareRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	so, err := op(ctx, req.ShareURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := json.NewEncoder(w).Encode(so); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// itemsOperation serves the operations that take a share URI and item URIs
// and return nothing.
func (s *server) itemsOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, uri share.ShareURI, itemURIs []share.ShareItemURI) error) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := ItemsRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := op(ctx, req.ShareURI, req.ItemURIs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}

// purposeUpdate serves the operations that update one free-text purpose
// field.
func (s *server) purposeUpdate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, uri share.ShareURI, purpose string) error) {
	body := r.Body
	defer body.Close()

	ctx := r.Context()

	req := struct {
		ShareURI share.ShareURI `json:"shareUri"`
		Purpose  string         `json:"purpose"`
	}{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := op(ctx, req.ShareURI, req.Purpose); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
}
