package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/livelist"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

// viewState is the body of snapshot events and view reads.
type viewState struct {
	ViewID       string               `json:"view_id"`
	Kind         service.ViewKind     `json:"kind"`
	Origin       domain.Origin        `json:"origin,omitempty"`
	Loaded       bool                 `json:"loaded"`
	ActiveTag    string               `json:"active_tag,omitempty"`
	Search       string               `json:"search,omitempty"`
	SourceErrors map[string]string    `json:"source_errors,omitempty"`
	Items        []domain.ListingItem `json:"items"`
}

func stateOf(v *service.View, items []domain.ListingItem) viewState {
	l := v.List()
	st := viewState{
		ViewID:    v.ID,
		Kind:      v.Kind,
		Loaded:    l.Loaded(),
		ActiveTag: l.ActiveTag(),
		Search:    l.SearchText(),
		Items:     items,
	}
	for _, origin := range domain.Origins() {
		if err := l.SourceErr(origin); err != nil {
			if st.SourceErrors == nil {
				st.SourceErrors = make(map[string]string, 2)
			}
			st.SourceErrors[string(origin)] = err.Error()
		}
	}
	if st.Items == nil {
		st.Items = []domain.ListingItem{}
	}
	return st
}

type sourceErrorEvent struct {
	ViewID  string        `json:"view_id"`
	Origin  domain.Origin `json:"origin"`
	Message string        `json:"message"`
}

type writeErrorEvent struct {
	ViewID  string `json:"view_id"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// StreamView opens a live view of {kind} and streams it as server-sent
// events until the client goes away. ?view=<id> re-attaches to an open
// view instead.
func StreamView(d deps.Deps) http.HandlerFunc {
	heartbeat := d.SSEHeartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			return
		}
		ident := identity(r)

		view, err := openOrAttach(r, d, ident)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		detach, ok := view.Attach()
		if !ok {
			writeError(w, r, d.Logger, apperrors.Conflict("view is already being streamed"))
			return
		}
		defer detach()

		stream, err := startStream(w)
		if err != nil {
			d.Logger.Error("failed to start view stream", logger.Error(err))
			writeError(w, r, d.Logger, apperrors.Internal(err, "streaming not supported"))
			return
		}

		log := d.Logger
		if err := stream.send("connected", map[string]string{
			"view_id": view.ID,
			"kind":    string(view.Kind),
		}); err != nil {
			log.Debug("client left before connected event", logger.String("view_id", view.ID))
			return
		}
		if err := stream.send(livelist.EventSnapshot.String(), stateOf(view, view.List().Visible())); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		events := view.List().Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					_ = stream.send("closed", map[string]string{"view_id": view.ID})
					return
				}
				if err := stream.send(ev.Kind.String(), eventPayload(view, ev)); err != nil {
					log.Debug("client disconnected during send", logger.String("view_id", view.ID))
					return
				}
			case <-ticker.C:
				if err := stream.send("heartbeat", map[string]int64{"ts": time.Now().Unix()}); err != nil {
					log.Debug("client disconnected during heartbeat", logger.String("view_id", view.ID))
					return
				}
			case <-r.Context().Done():
				log.Debug("view stream ended", logger.String("view_id", view.ID))
				return
			}
		}
	}
}

func openOrAttach(r *http.Request, d deps.Deps, ident domain.Identity) (*service.View, error) {
	if viewID := r.URL.Query().Get("view"); viewID != "" {
		return d.Views.Get(viewID, ident)
	}
	kind, err := service.ParseViewKind(chi.URLParam(r, "kind"))
	if err != nil {
		return nil, err
	}
	return d.Views.Open(r.Context(), ident, kind)
}

func eventPayload(v *service.View, ev livelist.Event) any {
	switch ev.Kind {
	case livelist.EventSourceError:
		return sourceErrorEvent{ViewID: v.ID, Origin: ev.Origin, Message: errText(ev.Err)}
	case livelist.EventWriteError:
		return writeErrorEvent{ViewID: v.ID, Key: ev.Key.String(), Message: errText(ev.Err)}
	default:
		st := stateOf(v, ev.Items)
		st.Origin = ev.Origin
		return st
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// GetView returns the view's items. q filters by tag prefix and tag by
// exact tag without changing the view's own filter.
func GetView(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := d.Views.Get(chi.URLParam(r, "viewID"), identity(r))
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		l := view.List()
		q := r.URL.Query()
		var items []domain.ListingItem
		switch {
		case q.Get("tag") != "":
			items = l.FilterByExactTag(q.Get("tag"))
		case q.Has("q"):
			items = l.FilterByTagPrefix(q.Get("q"))
		default:
			items = l.Visible()
		}
		writeJSON(w, http.StatusOK, stateOf(view, items))
	}
}

type tagRequest struct {
	Tag string `json:"tag"`
}

// SelectTag toggles the view's active quick tag.
func SelectTag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := d.Views.Get(chi.URLParam(r, "viewID"), identity(r))
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		var in tagRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		items := view.List().SelectTag(in.Tag)
		writeJSON(w, http.StatusOK, stateOf(view, items))
	}
}

type searchRequest struct {
	Q string `json:"q"`
}

// SearchView sets the view's tag prefix filter.
func SearchView(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := d.Views.Get(chi.URLParam(r, "viewID"), identity(r))
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		var in searchRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		items := view.List().Search(in.Q)
		writeJSON(w, http.StatusOK, stateOf(view, items))
	}
}

func ToggleFavorite(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, key, err := viewItem(r, d)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		item, err := view.ToggleFavorite(r.Context(), key)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

type statusRequest struct {
	Status  string `json:"status"`
	Confirm bool   `json:"confirm"`
}

type statusResponse struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Value   *int   `json:"value,omitempty"`
	Deleted bool   `json:"deleted"`
}

// UpdateStatus applies a status action. "sold" answers 428 until the
// request carries confirm=true.
func UpdateStatus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, key, err := viewItem(r, d)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		var in statusRequest
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		intent, err := view.UpdateStatus(r.Context(), key, domain.StatusAction(in.Status), in.Confirm)
		if err != nil {
			var appErr *apperrors.Error
			if errors.As(err, &appErr) && appErr.Code == apperrors.CodeConfirmationRequired {
				err = &apperrors.Error{
					Code:    appErr.Code,
					Message: appErr.Message,
					Details: map[string]string{"key": key.String(), "action": strings.ToLower(in.Status)},
				}
			}
			writeError(w, r, d.Logger, err)
			return
		}

		resp := statusResponse{Key: key.String(), Kind: intent.Kind.String(), Deleted: intent.Destructive()}
		if !intent.Destructive() {
			value := intent.Value
			resp.Field = intent.Field
			resp.Value = &value
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func CloseView(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Views.Close(chi.URLParam(r, "viewID"), identity(r)); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func viewItem(r *http.Request, d deps.Deps) (*service.View, domain.Key, error) {
	view, err := d.Views.Get(chi.URLParam(r, "viewID"), identity(r))
	if err != nil {
		return nil, domain.Key{}, err
	}
	origin, err := domain.ParseOrigin(chi.URLParam(r, "origin"))
	if err != nil {
		return nil, domain.Key{}, apperrors.Validation(err.Error())
	}
	return view, domain.Key{Origin: origin, ID: chi.URLParam(r, "id")}, nil
}
