package alert_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/influxdata/alertd/services/alert"
	"github.com/stretchr/testify/require"
)

type viewBody struct {
	Decision   string `json:"decision"`
	AlertID    string `json:"alert-id"`
	Subscribed bool   `json:"subscribed"`
	Location   string `json:"location"`
	Alert      *struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Owners      []string `json:"owners"`
		Subscribers []string `json:"subscribers"`
		Lockout     string   `json:"lockout-duration"`
		LastSent    string   `json:"last-sent"`
	} `json:"alert"`
	Form *struct {
		Name      string `json:"name"`
		Subscribe bool   `json:"subscribe"`
		Triggers  []struct {
			Name        string `json:"name"`
			ValueSource string `json:"value-source"`
			Value       string `json:"value"`
			Compare     string `json:"compare"`
		} `json:"triggers"`
	} `json:"form"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
	Row   *int   `json:"row"`
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
	user string
}

func (h *harness) client(t *testing.T, user string) *client {
	return &client{
		t:    t,
		base: h.server.URL(),
		user: user,
		http: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *client) do(method, path string, form url.Values) (*http.Response, viewBody) {
	c.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, "pw")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var v viewBody
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&v))
	}
	return resp, v
}

func TestAPI_CreateAndEdit(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	primary := h.client(t, "primary")

	resp, v := primary.do("GET", "/alert/create", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "create", v.Decision)
	require.True(t, v.Form.Subscribe)

	resp, v = primary.do("POST", "/alert/create", validSubmission().Values())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := v.AlertID
	require.NotEmpty(t, id)
	require.Equal(t, "/alert/config/"+id, resp.Header.Get("Location"))
	require.Equal(t, "02:33:15", v.Alert.Lockout)
	require.Equal(t, "never", v.Alert.LastSent)

	resp, v = primary.do("GET", "/alert/config/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "edit", v.Decision)
	require.Equal(t, "alert_name", v.Form.Name)
	require.Len(t, v.Form.Triggers, 2)
	require.Equal(t, "<=", v.Form.Triggers[0].Compare)
	require.Equal(t, "100", v.Form.Triggers[0].Value)
	require.Equal(t, "-1", v.Form.Triggers[0].ValueSource)

	sub := validSubmission()
	sub.Name = "renamed"
	resp, v = primary.do("POST", "/alert/config/"+id, sub.Values())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "renamed", v.Alert.Name)

	// Owners are sent from the detail view to the edit view.
	resp, v = primary.do("GET", "/alert/detail/"+id, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/alert/config/"+id, resp.Header.Get("Location"))
	require.Equal(t, "redirect-to-edit", v.Decision)
}

func TestAPI_NonOwner(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	a := h.create(t, h.primary, validSubmission())
	secondary := h.client(t, "secondary")

	resp, v := secondary.do("GET", "/alert/config/"+a.ID, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/alert/detail/"+a.ID, resp.Header.Get("Location"))
	require.Equal(t, "redirect-to-detail", v.Decision)

	resp, _ = secondary.do("POST", "/alert/config/"+a.ID, validSubmission().Values())
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/alert/detail/"+a.ID, resp.Header.Get("Location"))

	resp, v = secondary.do("GET", "/alert/detail/"+a.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "read-only", v.Decision)
	require.False(t, v.Subscribed)
	require.Nil(t, v.Alert.Subscribers)

	resp, v = secondary.do("POST", "/alert/detail/"+a.ID, url.Values{"new_subscribe": {"on"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, v.Subscribed)

	resp, v = secondary.do("POST", "/alert/detail/"+a.ID, url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, v.Subscribed)

	resp, _ = secondary.do("DELETE", "/alert/delete/"+a.ID, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, err := h.alerts.Alert(a.ID)
	require.NoError(t, err)
}

func TestAPI_Missing(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	primary := h.client(t, "primary")
	for _, path := range []string{"/alert/config/nope", "/alert/detail/nope", "/alert/delete/nope"} {
		resp, v := primary.do("GET", path, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		require.Equal(t, "/alert/create", resp.Header.Get("Location"), path)
		require.Equal(t, "redirect-to-create", v.Decision, path)
	}
	resp, _ := primary.do("POST", "/alert/config/nope", validSubmission().Values())
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/alert/create", resp.Header.Get("Location"))
}

func TestAPI_Anonymous(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	a := h.create(t, h.primary, validSubmission())
	anon := h.client(t, "")

	resp, v := anon.do("GET", "/alert/create", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, v.Error)

	resp, _ = anon.do("POST", "/alert/create", validSubmission().Values())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = anon.do("GET", "/alert/list", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = anon.do("POST", "/alert/detail/"+a.ID, url.Values{"new_subscribe": {"on"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = anon.do("GET", "/alert/config/"+a.ID, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Unknown alerts redirect before identity matters.
	resp, v = anon.do("GET", "/alert/detail/nope", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "redirect-to-create", v.Decision)
}

func TestAPI_Validation(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	primary := h.client(t, "primary")

	sub := validSubmission()
	sub.Triggers[1].Value = "seven"
	resp, v := primary.do("POST", "/alert/create", sub.Values())
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, alert.BadValue.String(), v.Kind)
	require.NotNil(t, v.Row)
	require.Equal(t, 1, *v.Row)

	sub = validSubmission()
	sub.OwnerNames = []string{"nobody"}
	resp, v = primary.do("POST", "/alert/create", sub.Values())
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, alert.UnknownOwner.String(), v.Kind)
	require.Equal(t, "nobody", v.Owner)
	require.Nil(t, v.Row)

	form := validSubmission().Values()
	form.Set("tg-TOTAL_FORMS", "5000")
	resp, v = primary.do("POST", "/alert/create", form)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, alert.TooManyTriggers.String(), v.Kind)

	form.Set("tg-TOTAL_FORMS", "many")
	resp, _ = primary.do("POST", "/alert/create", form)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	alerts, err := h.alerts.ListAlerts("", 0, -1)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAPI_ListAndDelete(t *testing.T) {
	h := newHarnessWithHTTP(t, true)
	a := h.create(t, h.primary, validSubmission())
	sub := validSubmission()
	sub.Name = "other"
	sub.OwnerNames = []string{"secondary"}
	h.create(t, h.secondary, sub)

	primary := h.client(t, "primary")
	req, err := http.NewRequest("GET", h.server.URL()+"/alert/list?pattern=alert_*", nil)
	require.NoError(t, err)
	req.SetBasicAuth("primary", "pw")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Alerts []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Owner      bool   `json:"owner"`
			Subscribed bool   `json:"subscribed"`
		} `json:"alerts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Alerts, 1)
	require.Equal(t, a.ID, list.Alerts[0].ID)
	require.True(t, list.Alerts[0].Owner)
	require.True(t, list.Alerts[0].Subscribed)

	resp2, v := primary.do("GET", "/alert/delete/"+a.ID, nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, "edit", v.Decision)

	resp2, _ = primary.do("POST", "/alert/delete/"+a.ID, nil)
	require.Equal(t, http.StatusNoContent, resp2.StatusCode)
	_, err = h.alerts.Alert(a.ID)
	require.Equal(t, alert.ErrAlertNotFound, err)
}
