package alert

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/influxdata/alertd/services/storage"
	"github.com/pkg/errors"
)

// Data access object for Alert data, triggers included.
type AlertDAO interface {
	// Retrieve an alert with its triggers in position order.
	// ErrNoAlertExists is returned if the alert does not exist.
	Get(id string) (Alert, error)
	GetTx(tx storage.ReadOnlyTx, id string) (Alert, error)

	// Create an alert and all of its triggers.
	// ErrAlertExists is returned if an alert already exists with the same ID.
	CreateTx(tx storage.Tx, a Alert) error

	// Replace an existing alert, writing only the trigger changes in diff.
	// ErrNoAlertExists is returned if the alert does not exist.
	ReplaceTx(tx storage.Tx, a Alert, diff TriggerDiff) error

	// Delete an alert and its triggers.
	// It is not an error to delete an non-existent alert.
	DeleteTx(tx storage.Tx, id string) error

	// List alerts whose name matches a pattern, ordered by name.
	// An empty pattern matches every alert. If limit < 0, then no limit is enforced.
	// The pattern is shell/glob matching see https://golang.org/pkg/path/#Match
	// Offset and limit are pagination bounds. Offset is inclusive starting at index 0.
	// More results may exist while the number of returned items is equal to limit.
	// Triggers are not loaded.
	List(pattern string, offset, limit int) ([]Alert, error)

	Rebuild() error
}

//--------------------------------------------------------------------
// The following structures are stored in the database via versioned JSON.
// Changes to them could break existing data, so they are defined here
// apart from the API types.

const (
	alertRecordVersion   = 1
	triggerRecordVersion = 1
)

type alertRecord struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Owners          []string       `json:"owners"`
	Subscribers     []string       `json:"subscribers"`
	LockoutDuration *time.Duration `json:"lockout-duration,omitempty"`
	LastSent        *time.Time     `json:"last-sent,omitempty"`
	Created         time.Time      `json:"created"`
	Modified        time.Time      `json:"modified"`
}

func (r alertRecord) ObjectID() string {
	return r.ID
}

func (r alertRecord) MarshalBinary() ([]byte, error) {
	return storage.VersionJSONEncode(alertRecordVersion, r)
}

func (r *alertRecord) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		if version != alertRecordVersion {
			return fmt.Errorf("unknown alert version %d: cannot decode", version)
		}
		return dec.Decode(r)
	})
}

func newAlertRecord(a Alert) *alertRecord {
	return &alertRecord{
		ID:              a.ID,
		Name:            a.Name,
		Owners:          a.Owners,
		Subscribers:     a.Subscribers,
		LockoutDuration: a.LockoutDuration,
		LastSent:        a.LastSent,
		Created:         a.Created,
		Modified:        a.Modified,
	}
}

func (r alertRecord) alert() Alert {
	return Alert{
		ID:              r.ID,
		Name:            r.Name,
		Owners:          r.Owners,
		Subscribers:     r.Subscribers,
		LockoutDuration: r.LockoutDuration,
		LastSent:        r.LastSent,
		Created:         r.Created,
		Modified:        r.Modified,
	}
}

type triggerRecord struct {
	ID          string   `json:"id"`
	AlertID     string   `json:"alert-id"`
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	ValueSource *string  `json:"value-source,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Compare     Compare  `json:"compare,omitempty"`
}

// ObjectID groups triggers under their alert.
func (r triggerRecord) ObjectID() string {
	return r.AlertID + "/" + r.ID
}

func (r triggerRecord) MarshalBinary() ([]byte, error) {
	if r.ID == "" || r.AlertID == "" {
		return nil, errors.New("trigger requires an ID and an alert ID")
	}
	return storage.VersionJSONEncode(triggerRecordVersion, r)
}

func (r *triggerRecord) UnmarshalBinary(data []byte) error {
	return storage.VersionJSONDecode(data, func(version int, dec *json.Decoder) error {
		if version != triggerRecordVersion {
			return fmt.Errorf("unknown trigger version %d: cannot decode", version)
		}
		return dec.Decode(r)
	})
}

func newTriggerRecord(t Trigger) *triggerRecord {
	r := triggerRecord(t)
	return &r
}

const (
	alertStorePrefix   = "alerts"
	triggerStorePrefix = "triggers"

	nameIndex     = "name"
	positionIndex = "position"
)

// positionKey orders triggers by alert, then position.
func positionKey(alertID string, position int) string {
	return fmt.Sprintf("%s/%08d", alertID, position)
}

// Key/Value store based implementation of the AlertDAO
type alertKV struct {
	db       storage.Interface
	alerts   *storage.IndexedStore
	triggers *storage.IndexedStore
}

func newAlertKV(db storage.Interface) (*alertKV, error) {
	ac := storage.DefaultIndexedStoreConfig(alertStorePrefix, func() storage.BinaryObject {
		return new(alertRecord)
	})
	ac.Indexes = append(ac.Indexes, storage.Index{
		Name: nameIndex,
		ValueFunc: func(o storage.BinaryObject) (string, error) {
			r, ok := o.(*alertRecord)
			if !ok {
				return "", storage.ImpossibleTypeErr(r, o)
			}
			return r.Name, nil
		},
	})
	alerts, err := storage.NewIndexedStore(db, ac)
	if err != nil {
		return nil, err
	}

	tc := storage.DefaultIndexedStoreConfig(triggerStorePrefix, func() storage.BinaryObject {
		return new(triggerRecord)
	})
	tc.Indexes = append(tc.Indexes, storage.Index{
		Name: positionIndex,
		ValueFunc: func(o storage.BinaryObject) (string, error) {
			r, ok := o.(*triggerRecord)
			if !ok {
				return "", storage.ImpossibleTypeErr(r, o)
			}
			return positionKey(r.AlertID, r.Position), nil
		},
	})
	triggers, err := storage.NewIndexedStore(db, tc)
	if err != nil {
		return nil, err
	}
	return &alertKV{
		db:       db,
		alerts:   alerts,
		triggers: triggers,
	}, nil
}

func (kv *alertKV) error(err error) error {
	if err == storage.ErrObjectExists {
		return ErrAlertExists
	} else if err == storage.ErrNoObjectExists {
		return ErrNoAlertExists
	}
	return err
}

func (kv *alertKV) Get(id string) (a Alert, err error) {
	err = kv.db.View(func(tx storage.ReadOnlyTx) error {
		a, err = kv.GetTx(tx, id)
		return err
	})
	return
}

func (kv *alertKV) GetTx(tx storage.ReadOnlyTx, id string) (Alert, error) {
	o, err := kv.alerts.GetTx(tx, id)
	if err != nil {
		return Alert{}, kv.error(err)
	}
	r, ok := o.(*alertRecord)
	if !ok {
		return Alert{}, storage.ImpossibleTypeErr(r, o)
	}
	a := r.alert()
	a.Triggers, err = kv.triggersTx(tx, id)
	if err != nil {
		return Alert{}, err
	}
	return a, nil
}

func (kv *alertKV) triggersTx(tx storage.ReadOnlyTx, alertID string) ([]Trigger, error) {
	objects, err := kv.triggers.ListPrefixTx(tx, positionIndex, alertID+"/")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load triggers of alert %s", alertID)
	}
	triggers := make([]Trigger, len(objects))
	for i, o := range objects {
		r, ok := o.(*triggerRecord)
		if !ok {
			return nil, storage.ImpossibleTypeErr(r, o)
		}
		triggers[i] = Trigger(*r)
	}
	return triggers, nil
}

func (kv *alertKV) CreateTx(tx storage.Tx, a Alert) error {
	if err := kv.alerts.CreateTx(tx, newAlertRecord(a)); err != nil {
		return kv.error(err)
	}
	for _, t := range a.Triggers {
		if err := kv.triggers.CreateTx(tx, newTriggerRecord(t)); err != nil {
			return errors.Wrapf(err, "failed to create trigger %d", t.Position)
		}
	}
	return nil
}

func (kv *alertKV) ReplaceTx(tx storage.Tx, a Alert, diff TriggerDiff) error {
	if err := kv.alerts.ReplaceTx(tx, newAlertRecord(a)); err != nil {
		return kv.error(err)
	}
	for _, t := range diff.Delete {
		if err := kv.triggers.DeleteTx(tx, newTriggerRecord(t).ObjectID()); err != nil {
			return errors.Wrapf(err, "failed to delete trigger %s", t.ID)
		}
	}
	for _, t := range diff.Update {
		if err := kv.triggers.ReplaceTx(tx, newTriggerRecord(t)); err != nil {
			return errors.Wrapf(err, "failed to update trigger %s", t.ID)
		}
	}
	for _, t := range diff.Create {
		if err := kv.triggers.CreateTx(tx, newTriggerRecord(t)); err != nil {
			return errors.Wrapf(err, "failed to create trigger %d", t.Position)
		}
	}
	return nil
}

func (kv *alertKV) DeleteTx(tx storage.Tx, id string) error {
	triggers, err := kv.triggersTx(tx, id)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := kv.triggers.DeleteTx(tx, newTriggerRecord(t).ObjectID()); err != nil {
			return errors.Wrapf(err, "failed to delete trigger %s", t.ID)
		}
	}
	return kv.alerts.DeleteTx(tx, id)
}

func (kv *alertKV) List(pattern string, offset, limit int) ([]Alert, error) {
	objects, err := kv.alerts.List(nameIndex, "", 0, -1)
	if err != nil {
		return nil, err
	}
	var alerts []Alert
	for _, o := range objects {
		r, ok := o.(*alertRecord)
		if !ok {
			return nil, storage.ImpossibleTypeErr(r, o)
		}
		if pattern != "" {
			if matched, _ := path.Match(pattern, r.Name); !matched {
				continue
			}
		}
		alerts = append(alerts, r.alert())
	}
	if offset >= len(alerts) || limit == 0 {
		return nil, nil
	}
	alerts = alerts[offset:]
	if limit > 0 && limit < len(alerts) {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

// Rebuild recreates the indexes of alerts and triggers in one transaction.
func (kv *alertKV) Rebuild() error {
	return kv.db.Update(func(tx storage.Tx) error {
		if err := kv.alerts.RebuildTx(tx); err != nil {
			return err
		}
		return kv.triggers.RebuildTx(tx)
	})
}
