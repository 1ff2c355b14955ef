package customersync

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
	"github.com/manmanrai/limerime-vercel-api/internal/profilefields"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

const testCustomer = "8570264879349"

func newTestCoordinator(svc shopify.Service, cfg Config, opts ...Option) *Coordinator {
	return NewCoordinator(svc, testEvaluator(), cfg, opts...)
}

func newMock(tags string) *shopify.MockShopifyService {
	svc := shopify.NewMockShopifyService()
	svc.AddCustomer(testCustomer, tags)
	return svc
}

func metafieldValue(t *testing.T, svc shopify.Service, slot Slot) (string, bool) {
	t.Helper()
	list, err := svc.ListMetafields(context.Background(), testCustomer)
	if err != nil {
		t.Fatalf("unexpected error listing metafields: %v", err)
	}
	for _, m := range list {
		if slot.Matches(m) {
			return m.Value, true
		}
	}
	return "", false
}

type countingObserver struct {
	mu        sync.Mutex
	syncs     map[string]int
	writes    map[string]int
	tagWrites int
	failures  int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{syncs: map[string]int{}, writes: map[string]int{}}
}

func (o *countingObserver) ObserveSync(operation string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncs[operation]++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveMetafieldWrite(kind string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[kind]++
}

func (o *countingObserver) ObserveTagWrite(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tagWrites++
}

func TestSyncScenarios(t *testing.T) {
	tests := []struct {
		name     string
		birth    string
		wantTag  string
		denyTag  string
		wantAge  string
		policy   eligibility.TagPolicy
		startTag string
	}{
		{"29 years before today", "1997-10-15", eligibility.TagUnder30, eligibility.TagAbove30, "28", eligibility.TagPolicyExclusive, "above30"},
		{"31 years before today", "1995-10-15", eligibility.TagAbove30, eligibility.TagUnder30, "30", eligibility.TagPolicyExclusive, "under30"},
		{"one day after the cutoff birthday", "1996-04-02", eligibility.TagUnder30, eligibility.TagAbove30, "29", eligibility.TagPolicyExclusive, ""},
		{"on the cutoff birthday", "1996-04-01", eligibility.TagAbove30, eligibility.TagUnder30, "30", eligibility.TagPolicyExclusive, ""},
		{"day before the cutoff birthday", "1996-03-31", eligibility.TagAbove30, eligibility.TagUnder30, "30", eligibility.TagPolicyExclusive, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMock("vip, " + tt.startTag)
			c := newTestCoordinator(svc, Config{TagPolicy: tt.policy})

			res, err := c.Sync(context.Background(), testCustomer, map[string]string{
				profilefields.SelfBirthDate: tt.birth,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Contains(res.Tags, tt.wantTag) {
				t.Fatalf("expected tags to include %s, got %v", tt.wantTag, res.Tags)
			}
			if slices.Contains(res.Tags, tt.denyTag) {
				t.Fatalf("expected tags to exclude %s, got %v", tt.denyTag, res.Tags)
			}
			if !slices.Contains(res.Tags, "vip") {
				t.Fatalf("expected unrelated tag vip to be kept, got %v", res.Tags)
			}
			if got := svc.Tags(testCustomer); got != eligibility.JoinTags(res.Tags) {
				t.Fatalf("expected remote tags %q, got %q", eligibility.JoinTags(res.Tags), got)
			}
			if age, _ := metafieldValue(t, svc, SlotAge); age != tt.wantAge {
				t.Fatalf("expected stored age %s, got %s", tt.wantAge, age)
			}
			if date, _ := metafieldValue(t, svc, SlotBirthDate); date != tt.birth {
				t.Fatalf("expected stored birth date %s, got %s", tt.birth, date)
			}
		})
	}
}

func TestSyncUnder30OnlyPolicyLeavesAbove30(t *testing.T) {
	svc := newMock("above30, under30, vip")
	c := newTestCoordinator(svc, Config{TagPolicy: eligibility.TagPolicyUnder30Only})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate: "1980-01-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"above30", "vip"}
	if !slices.Equal(res.Tags, want) {
		t.Fatalf("expected %v, got %v", want, res.Tags)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	svc := newMock("vip, wholesale")
	c := newTestCoordinator(svc, Config{})
	fields := map[string]string{
		profilefields.SelfBirthDate:            "2000-06-01",
		profilefields.DependentName(1):         "Mei",
		profilefields.DependentRelationship(1): "daughter",
		profilefields.DependentBirthDate(1):    "2020-02-29",
		"unknown_field":                        "ignored",
		profilefields.DependentRelationship(2): "",
	}

	first, err := c.Sync(context.Background(), testCustomer, fields)
	if err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	afterFirst := svc.Counts()
	if afterFirst.Creates != 6 || afterFirst.Updates != 0 {
		t.Fatalf("expected 6 creates on first run, got %+v", afterFirst)
	}

	second, err := c.Sync(context.Background(), testCustomer, fields)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	afterSecond := svc.Counts()
	if afterSecond.Creates != 6 {
		t.Fatalf("expected no new creates, got %d", afterSecond.Creates)
	}
	if afterSecond.Updates != 6 {
		t.Fatalf("expected 6 updates on second run, got %d", afterSecond.Updates)
	}
	if afterSecond.TagWrites != 1 {
		t.Fatalf("expected unchanged tags to skip the second tag write, got %d writes", afterSecond.TagWrites)
	}
	if second.TagsChanged {
		t.Fatal("expected second run to leave tags unchanged")
	}
	if !slices.Equal(first.Tags, second.Tags) {
		t.Fatalf("expected same tags, got %v then %v", first.Tags, second.Tags)
	}
	if want := []string{"vip", "wholesale", "under30"}; !slices.Equal(second.Tags, want) {
		t.Fatalf("expected %v, got %v", want, second.Tags)
	}

	list, _ := svc.ListMetafields(context.Background(), testCustomer)
	if len(list) != 6 {
		t.Fatalf("expected 6 metafields, got %d", len(list))
	}
	for _, w := range second.Writes {
		if w.Kind != OpUpdate {
			t.Fatalf("expected update for %s, got %s", w.Field, w.Kind)
		}
	}
	if rel, _ := metafieldValue(t, svc, Slot{Namespace: "custom", Key: "dependent_2_relationship"}); rel != "[]" {
		t.Fatalf("expected empty relationship list, got %q", rel)
	}
}

func TestSyncPartialFailureKeepsSuccessfulWrites(t *testing.T) {
	svc := newMock("under30")
	failing := map[string]bool{"age": true, "dependent_1_name": true}
	svc.FailWrites(func(_ string, in shopify.MetafieldInput) error {
		if failing[in.Key] {
			return errors.New("metafield write rejected: " + in.Key)
		}
		return nil
	})
	c := newTestCoordinator(svc, Config{})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate:            "2001-01-01",
		profilefields.DependentName(1):         "Mei",
		profilefields.DependentRelationship(1): "daughter",
		profilefields.DependentBirthDate(1):    "2020-01-01",
	})
	if err == nil {
		t.Fatal("expected aggregate failure")
	}
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindAggregate {
		t.Fatalf("expected aggregate error, got %v", err)
	}
	if err.Error() != "2 of 5 writes failed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if len(syncErr.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(syncErr.Failures))
	}
	if syncErr.Details() != syncErr.Failures[0].Error() {
		t.Fatalf("expected details to carry the first failure, got %q", syncErr.Details())
	}
	for _, f := range syncErr.Failures {
		if f.Kind != KindRemoteWrite {
			t.Fatalf("expected remote_write failure, got %s", f.Kind)
		}
	}
	if res == nil || len(res.Writes) != 3 {
		t.Fatalf("expected 3 applied writes in result, got %+v", res)
	}

	// The successful writes stay applied.
	list, err := svc.ListMetafields(context.Background(), testCustomer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 metafields after partial failure, got %d", len(list))
	}
	for _, m := range list {
		if failing[m.Key] {
			t.Fatalf("unexpected metafield for failed write: %+v", m)
		}
	}
}

func TestSyncTagWriteFailureIsCollected(t *testing.T) {
	svc := newMock("vip")
	svc.FailTagWrites(errors.New("tags rejected"))
	c := newTestCoordinator(svc, Config{})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate: "2001-01-01",
	})
	if KindOf(err) != KindAggregate {
		t.Fatalf("expected aggregate error, got %v", err)
	}
	if err.Error() != "1 of 3 writes failed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if len(res.Writes) != 2 {
		t.Fatalf("expected metafield writes to proceed, got %d", len(res.Writes))
	}
}

func TestSyncReadFailureShortCircuits(t *testing.T) {
	svc := newMock("vip")
	svc.FailReads(errors.New("connection reset"))
	c := newTestCoordinator(svc, Config{})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate: "2001-01-01",
	})
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if KindOf(err) != KindRemoteRead {
		t.Fatalf("expected remote_read error, got %v", err)
	}
	if counts := svc.Counts(); counts != (shopify.CallCounts{}) {
		t.Fatalf("expected no writes, got %+v", counts)
	}
}

func TestSyncUnknownCustomer(t *testing.T) {
	c := newTestCoordinator(shopify.NewMockShopifyService(), Config{})

	_, err := c.Sync(context.Background(), "404", map[string]string{
		profilefields.SelfBirthDate: "2001-01-01",
	})
	if !errors.Is(err, shopify.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncValidation(t *testing.T) {
	svc := newMock("")
	c := newTestCoordinator(svc, Config{})

	tests := []struct {
		name       string
		customerID string
		fields     map[string]string
		field      string
	}{
		{"missing customer", " ", map[string]string{profilefields.SelfBirthDate: "2001-01-01"}, "customerId"},
		{"no fields", testCustomer, nil, "fields"},
		{"only unknown fields", testCustomer, map[string]string{"nickname": "x"}, "fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Sync(context.Background(), tt.customerID, tt.fields)
			var syncErr *Error
			if !errors.As(err, &syncErr) || syncErr.Kind != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if syncErr.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, syncErr.Field)
			}
		})
	}
	if counts := svc.Counts(); counts != (shopify.CallCounts{}) {
		t.Fatalf("expected no remote writes, got %+v", counts)
	}
}

func TestSyncSkipsUnparsableDates(t *testing.T) {
	svc := newMock("vip")
	c := newTestCoordinator(svc, Config{})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate:         "not a date",
		profilefields.DependentName(1):      "Mei",
		profilefields.DependentBirthDate(1): "2020-13-45",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{profilefields.DependentBirthDate(1), profilefields.SelfBirthDate}
	if !slices.Equal(res.Skipped, want) {
		t.Fatalf("expected skipped %v, got %v", want, res.Skipped)
	}
	if len(res.Writes) != 1 {
		t.Fatalf("expected only the name write, got %+v", res.Writes)
	}
	// An unparsable date is never under the threshold.
	if want := []string{"vip", "above30"}; !slices.Equal(res.Tags, want) {
		t.Fatalf("expected %v, got %v", want, res.Tags)
	}
}

func TestSyncWithoutBirthDatesLeavesTags(t *testing.T) {
	svc := newMock("vip, under30")
	c := newTestCoordinator(svc, Config{})

	res, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.DependentName(2): "Kai",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TagsChanged || svc.Counts().TagWrites != 0 {
		t.Fatal("expected tags to be left alone")
	}
	if want := []string{"vip", "under30"}; !slices.Equal(res.Tags, want) {
		t.Fatalf("expected %v, got %v", want, res.Tags)
	}
}

func TestSyncSubjectPolicy(t *testing.T) {
	fields := map[string]string{
		profilefields.SelfBirthDate:         "1980-01-01",
		profilefields.DependentBirthDate(3): "2015-05-05",
	}
	tests := []struct {
		subject eligibility.SubjectPolicy
		want    string
	}{
		{eligibility.SubjectSelf, eligibility.TagAbove30},
		{eligibility.SubjectHousehold, eligibility.TagUnder30},
	}
	for _, tt := range tests {
		t.Run(string(tt.subject), func(t *testing.T) {
			c := newTestCoordinator(newMock(""), Config{SubjectPolicy: tt.subject})
			res, err := c.Sync(context.Background(), testCustomer, fields)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(res.Tags, []string{tt.want}) {
				t.Fatalf("expected [%s], got %v", tt.want, res.Tags)
			}
		})
	}
}

func TestSyncReportsToObserver(t *testing.T) {
	obs := newCountingObserver()
	c := newTestCoordinator(newMock(""), Config{MaxConcurrency: 1}, WithObserver(obs))

	if _, err := c.Sync(context.Background(), testCustomer, map[string]string{
		profilefields.SelfBirthDate: "2001-01-01",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.syncs[OpSync] != 1 || obs.failures != 0 {
		t.Fatalf("unexpected sync observations: %+v", obs.syncs)
	}
	if obs.writes["create"] != 2 {
		t.Fatalf("expected 2 creates, got %d", obs.writes["create"])
	}
	if obs.tagWrites != 1 {
		t.Fatalf("expected 1 tag write, got %d", obs.tagWrites)
	}
}
