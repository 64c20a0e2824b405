package alert

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Form field names.
const (
	nameField      = "new_name"
	ownersField    = "new_owners"
	lockoutField   = "new_lockout_duration"
	subscribeField = "new_subscribe"

	triggerPrefix   = "tg-"
	totalFormsField = triggerPrefix + "TOTAL_FORMS"
)

var triggerField = regexp.MustCompile(`^tg-(\d+)-new_\w+$`)

// TriggerRow is one submitted trigger, exactly as entered.
type TriggerRow struct {
	Name        string `mapstructure:"new_name" json:"name"`
	ValueSource string `mapstructure:"new_pv" json:"value-source"`
	Value       string `mapstructure:"new_value" json:"value"`
	Compare     string `mapstructure:"new_compare" json:"compare"`
}

// Empty reports whether the row leaves name, value and compare unset.
func (r TriggerRow) Empty() bool {
	return strings.TrimSpace(r.Name) == "" &&
		strings.TrimSpace(r.Value) == "" &&
		unselected(r.Compare)
}

func unselected(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == noSelection
}

// Submission is an edit of an alert, exactly as entered.
type Submission struct {
	Name            string       `mapstructure:"new_name" json:"name"`
	LockoutDuration string       `mapstructure:"new_lockout_duration" json:"lockout-duration"`
	OwnerNames      []string     `mapstructure:"new_owners" json:"owners"`
	Subscribe       bool         `mapstructure:"new_subscribe" json:"subscribe"`
	Triggers        []TriggerRow `mapstructure:"-" json:"triggers"`
}

// ParseSubmission reads a submission from form values.
// Owners are a comma separated list of usernames. Trigger rows are read
// from tg-N-new_* fields, tg-TOTAL_FORMS of them when given.
// More than maxRows rows is rejected with TooManyTriggers.
func ParseSubmission(form url.Values, maxRows int) (Submission, error) {
	var sub Submission
	if err := decodeForm(form, &sub); err != nil {
		return Submission{}, errors.Wrap(err, "invalid submission")
	}

	total, err := rowCount(form)
	if err != nil {
		return Submission{}, err
	}
	if total > maxRows {
		return sub, invalid(TooManyTriggers, sub)
	}
	sub.Triggers = make([]TriggerRow, total)
	for i := range sub.Triggers {
		prefix := fmt.Sprintf("%s%d-", triggerPrefix, i)
		row := make(url.Values)
		for k, v := range form {
			if strings.HasPrefix(k, prefix) {
				row[strings.TrimPrefix(k, prefix)] = v
			}
		}
		if err := decodeForm(row, &sub.Triggers[i]); err != nil {
			return Submission{}, errors.Wrapf(err, "invalid trigger %d", i)
		}
	}
	return sub, nil
}

func rowCount(form url.Values) (int, error) {
	if s := form.Get(totalFormsField); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid %s %q", totalFormsField, s)
		}
		return n, nil
	}
	n := 0
	for k := range form {
		m := triggerField.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if i+1 > n {
			n = i + 1
		}
	}
	return n, nil
}

// Values encodes the submission as form values, the inverse of ParseSubmission.
func (s Submission) Values() url.Values {
	v := make(url.Values)
	v.Set(nameField, s.Name)
	v.Set(ownersField, strings.Join(s.OwnerNames, ","))
	if s.LockoutDuration != "" {
		v.Set(lockoutField, s.LockoutDuration)
	}
	if s.Subscribe {
		v.Set(subscribeField, "on")
	}
	v.Set(totalFormsField, strconv.Itoa(len(s.Triggers)))
	for i, r := range s.Triggers {
		prefix := fmt.Sprintf("%s%d-", triggerPrefix, i)
		v.Set(prefix+"new_name", r.Name)
		v.Set(prefix+"new_pv", r.ValueSource)
		v.Set(prefix+"new_value", r.Value)
		v.Set(prefix+"new_compare", r.Compare)
	}
	return v
}

// decodeForm decodes the first value of each field into out.
func decodeForm(form url.Values, out interface{}) error {
	input := make(map[string]interface{}, len(form))
	for k, v := range form {
		if len(v) > 0 {
			input[k] = v[0]
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			checkboxHook,
			usernamesHook,
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// checkboxHook decodes an HTML checkbox, which submits "on" when ticked.
func checkboxHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch s := strings.ToLower(strings.TrimSpace(data.(string))); s {
	case "on", "yes":
		return true, nil
	case "", "off", "no":
		return false, nil
	default:
		return s, nil
	}
}

// usernamesHook splits a comma separated username list.
func usernamesHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	return splitUsernames(data.(string)), nil
}

func splitUsernames(s string) []string {
	names := []string{}
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// normalizeNames returns the sorted set of names.
func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	set := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		set = append(set, n)
	}
	sort.Strings(set)
	return set
}
