package alert_test

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/influxdata/alertd/services/alert"
	"github.com/pkg/errors"
)

// primaryForm is the form the create page posts for a new alert.
func primaryForm() url.Values {
	return url.Values{
		"new_lockout_duration": {"02:33:15"},
		"new_name":             {"alert_name"},
		"new_owners":           {"primary"},
		"new_subscribe":        {"on"},
		"tg-0-new_compare":     {"<="},
		"tg-0-new_name":        {"0 trigger"},
		"tg-0-new_pv":          {"-1"},
		"tg-0-new_value":       {"100"},
		"tg-1-new_compare":     {"=="},
		"tg-1-new_name":        {"1 trigger"},
		"tg-1-new_pv":          {"-1"},
		"tg-1-new_value":       {"7"},
		"tg-2-new_compare":     {"-1"},
		"tg-2-new_name":        {""},
		"tg-2-new_pv":          {"-1"},
		"tg-2-new_value":       {""},
		"tg-INITIAL_FORMS":     {"0"},
		"tg-MAX_NUM_FORMS":     {"1000"},
		"tg-MIN_NUM_FORMS":     {"0"},
		"tg-TOTAL_FORMS":       {"3"},
	}
}

func TestParseSubmission(t *testing.T) {
	got, err := alert.ParseSubmission(primaryForm(), alert.DefaultMaxTriggers)
	if err != nil {
		t.Fatal(err)
	}
	exp := alert.Submission{
		Name:            "alert_name",
		LockoutDuration: "02:33:15",
		OwnerNames:      []string{"primary"},
		Subscribe:       true,
		Triggers: []alert.TriggerRow{
			{Name: "0 trigger", ValueSource: "-1", Value: "100", Compare: "<="},
			{Name: "1 trigger", ValueSource: "-1", Value: "7", Compare: "=="},
			{Name: "", ValueSource: "-1", Value: "", Compare: "-1"},
		},
	}
	if !cmp.Equal(got, exp) {
		t.Errorf("unexpected submission -want/+got\n%s", cmp.Diff(exp, got))
	}
	if !got.Triggers[2].Empty() {
		t.Error("expected placeholder row to be empty")
	}
}

func TestParseSubmission_Owners(t *testing.T) {
	testCases := []struct {
		owners []string
		exp    []string
	}{
		{owners: nil, exp: nil},
		{owners: []string{""}, exp: nil},
		{owners: []string{"test, test2"}, exp: []string{"test", "test2"}},
		{owners: []string{" a ,, b,"}, exp: []string{"a", "b"}},
	}
	for _, tc := range testCases {
		form := url.Values{"new_name": {"n"}}
		if tc.owners != nil {
			form["new_owners"] = tc.owners
		}
		sub, err := alert.ParseSubmission(form, 10)
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(sub.OwnerNames, tc.exp, cmpopts.EquateEmpty()) {
			t.Errorf("owners %q: -want/+got\n%s", tc.owners, cmp.Diff(tc.exp, sub.OwnerNames))
		}
	}
}

func TestParseSubmission_Subscribe(t *testing.T) {
	for in, exp := range map[string]bool{"on": true, "true": true, "1": true, "": false, "off": false} {
		sub, err := alert.ParseSubmission(url.Values{"new_subscribe": {in}}, 10)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if sub.Subscribe != exp {
			t.Errorf("%q: got %v exp %v", in, sub.Subscribe, exp)
		}
	}
	if _, err := alert.ParseSubmission(url.Values{"new_subscribe": {"maybe"}}, 10); err == nil {
		t.Error("expected error for invalid checkbox value")
	}
}

func TestParseSubmission_RowsWithoutTotal(t *testing.T) {
	form := url.Values{
		"new_name":      {"n"},
		"tg-1-new_name": {"second"},
	}
	sub, err := alert.ParseSubmission(form, 10)
	if err != nil {
		t.Fatal(err)
	}
	exp := []alert.TriggerRow{{}, {Name: "second"}}
	if !cmp.Equal(sub.Triggers, exp) {
		t.Errorf("unexpected rows -want/+got\n%s", cmp.Diff(exp, sub.Triggers))
	}
}

func TestParseSubmission_TooManyRows(t *testing.T) {
	form := url.Values{"new_name": {"n"}, "tg-TOTAL_FORMS": {"11"}}
	_, err := alert.ParseSubmission(form, 10)
	var verr *alert.ValidationError
	if !errors.As(err, &verr) || verr.Kind != alert.TooManyTriggers {
		t.Fatalf("expected TooManyTriggers, got %v", err)
	}

	form.Set("tg-TOTAL_FORMS", "lots")
	if _, err := alert.ParseSubmission(form, 10); err == nil {
		t.Fatal("expected error for invalid total")
	}
}

func TestSubmission_Values(t *testing.T) {
	sub, err := alert.ParseSubmission(primaryForm(), alert.DefaultMaxTriggers)
	if err != nil {
		t.Fatal(err)
	}
	again, err := alert.ParseSubmission(sub.Values(), alert.DefaultMaxTriggers)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(sub, again) {
		t.Errorf("values do not parse back -want/+got\n%s", cmp.Diff(sub, again))
	}
}
