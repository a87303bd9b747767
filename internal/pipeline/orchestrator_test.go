package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/adapter"
	"github.com/hnsc-omics/omics-cli/internal/harmonize"
	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/loader"
	"github.com/hnsc-omics/omics-cli/internal/model"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
	"github.com/hnsc-omics/omics-cli/internal/relstore"
	"github.com/hnsc-omics/omics-cli/internal/resilience"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var mappingCols = []string{
	"mapping_id", "source", "kind", "natural_key",
	"rel_table", "rel_key", "doc_collection", "doc_key", "sample_key",
	"integration_type", "last_stage", "error_reason", "updated_at",
}

func geoTemplates() *template.Set {
	return template.NewSet(&template.Template{
		Source: "geo",
		Kind:   model.KindSample,
		Fields: map[string]template.FieldSpec{
			"sample_id": {Path: "$.sample_id", Type: template.TypeString, Required: true},
			"platform":  {Path: "$.platform", Type: template.TypeString},
			"tissue":    {Path: "$.tissue", Type: template.TypeString},
		},
	})
}

// newTestOrchestrator wires every stage onto one mocked pool with
// concurrency 1 so expectations stay ordered.
func newTestOrchestrator(mock pgxmock.PgxPoolIface) *Orchestrator {
	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	ld := loader.New(relstore.New(mock), nil, ledger.New(mock), retry, resilience.DefaultCircuitBreakerConfig())
	return New(
		geoTemplates(),
		adapter.DefaultRegistry(),
		harmonize.New(nil),
		ld,
		ledger.New(mock),
		ledger.NewRunLog(mock),
		1,
	)
}

func expectRunStart(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("INSERT INTO omics.pipeline_run").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(time.Now().UTC()))
}

func expectRunStage(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("UPDATE omics.pipeline_run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func expectEnsure(mock pgxmock.PgxPoolIface, id, kind, key, stage string) {
	mock.ExpectQuery("INSERT INTO omics.entity_mapping").
		WillReturnRows(pgxmock.NewRows(mappingCols).AddRow(
			id, "geo", kind, key,
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			"direct", stage, (*string)(nil), time.Now().UTC(),
		))
}

func expectStageWrite(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("UPDATE omics.entity_mapping").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now().UTC()))
}

func TestRun_SingleSampleLandsIntegrated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sampleID := model.MappingID("geo", model.KindSample, "GSM1")

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // parsed
	expectRunStage(mock) // harmonizing
	expectRunStage(mock) // loading

	expectEnsure(mock, sampleID, "sample", "GSM1", "pending")
	expectStageWrite(mock) // harmonized
	expectStageWrite(mock) // loading
	mock.ExpectQuery(`INSERT INTO "omics"."samples"`).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	expectStageWrite(mock) // mark loaded
	expectStageWrite(mock) // integrated

	expectRunStage(mock) // finish

	orch := newTestOrchestrator(mock)
	raws := []RawRecord{{
		Source:     "geo",
		TemplateID: "geo/sample",
		Tree: rawtree.New(map[string]any{
			"sample_id": "GSM1",
			"platform":  "GPL24676",
			"tissue":    "tumor",
		}),
	}}

	summary, run, err := orch.Run(context.Background(), "geo", raws)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 1, summary.Integrated)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Quarantined)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ValidationFailureQuarantinesPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tree := rawtree.New(map[string]any{"platform": "GPL1"}) // no sample_id
	rawKey := "raw:" + tree.Digest()
	rawID := model.MappingID("geo", model.KindSample, rawKey)

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectEnsure(mock, rawID, "sample", rawKey, "pending")
	expectStageWrite(mock) // quarantined
	expectRunStage(mock)   // parsed
	expectRunStage(mock)   // harmonizing
	expectRunStage(mock)   // loading
	expectRunStage(mock)   // finish

	orch := newTestOrchestrator(mock)
	summary, _, err := orch.Run(context.Background(), "geo", []RawRecord{
		{Source: "geo", TemplateID: "geo/sample", Tree: tree},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Quarantined)
	require.NotEmpty(t, summary.Errors[model.CategoryValidation])
	assert.Contains(t, summary.Errors[model.CategoryValidation][0], "required field missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_MissingTemplateAbortsRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // finish (failed)

	orch := newTestOrchestrator(mock)
	_, _, err = orch.Run(context.Background(), "geo", []RawRecord{
		{Source: "geo", TemplateID: "geo/unconfigured", Tree: rawtree.New(map[string]any{})},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template for geo/unconfigured")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ReplaySkipsIntegratedEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sampleID := model.MappingID("geo", model.KindSample, "GSM1")

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // parsed
	expectRunStage(mock) // harmonizing
	expectRunStage(mock) // loading

	// The ledger already carries the entry at integrated: no store write,
	// no stage transitions.
	expectEnsure(mock, sampleID, "sample", "GSM1", "integrated")

	expectRunStage(mock) // finish

	orch := newTestOrchestrator(mock)
	summary, _, err := orch.Run(context.Background(), "geo", []RawRecord{{
		Source:     "geo",
		TemplateID: "geo/sample",
		Tree:       rawtree.New(map[string]any{"sample_id": "GSM1"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Integrated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_QuarantinedEntryStaysParked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sampleID := model.MappingID("geo", model.KindSample, "GSM1")

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // parsed
	expectRunStage(mock) // harmonizing
	expectRunStage(mock) // loading
	expectEnsure(mock, sampleID, "sample", "GSM1", "quarantined")
	expectRunStage(mock) // finish

	orch := newTestOrchestrator(mock)
	summary, _, err := orch.Run(context.Background(), "geo", []RawRecord{{
		Source:     "geo",
		TemplateID: "geo/sample",
		Tree:       rawtree.New(map[string]any{"sample_id": "GSM1"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Quarantined)
	assert.Zero(t, summary.Integrated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ResumeFromLoadingReplaysUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sampleID := model.MappingID("geo", model.KindSample, "GSM1")

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // parsed
	expectRunStage(mock) // harmonizing
	expectRunStage(mock) // loading

	// An interrupted run left the entry at loading: the stage transitions
	// are already satisfied, so the run goes straight to replaying the
	// idempotent store write and finishing the protocol.
	expectEnsure(mock, sampleID, "sample", "GSM1", "loading")
	mock.ExpectQuery(`INSERT INTO "omics"."samples"`).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	expectStageWrite(mock) // mark loaded
	expectStageWrite(mock) // integrated

	expectRunStage(mock) // finish

	orch := newTestOrchestrator(mock)
	summary, _, err := orch.Run(context.Background(), "geo", []RawRecord{{
		Source:     "geo",
		TemplateID: "geo/sample",
		Tree: rawtree.New(map[string]any{
			"sample_id": "GSM1",
			"platform":  "GPL24676",
		}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Integrated)
	assert.Zero(t, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ConcurrentQuarantineStaysParked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sampleID := model.MappingID("geo", model.KindSample, "GSM1")

	expectRunStart(mock)
	expectRunStage(mock) // validating
	expectRunStage(mock) // parsed
	expectRunStage(mock) // harmonizing
	expectRunStage(mock) // loading

	// A sibling run quarantines the entry between our read and the first
	// stage write: the CAS loses, the re-read finds quarantined, and the
	// record must stop there with no store write.
	expectEnsure(mock, sampleID, "sample", "GSM1", "pending")
	mock.ExpectQuery("UPDATE omics.entity_mapping").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}))
	mock.ExpectQuery("SELECT (.+) FROM omics.entity_mapping WHERE mapping_id").
		WillReturnRows(pgxmock.NewRows(mappingCols).AddRow(
			sampleID, "geo", "sample", "GSM1",
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			"direct", "quarantined", strPtr("store rejected"), time.Now().UTC(),
		))

	expectRunStage(mock) // finish

	orch := newTestOrchestrator(mock)
	summary, _, err := orch.Run(context.Background(), "geo", []RawRecord{{
		Source:     "geo",
		TemplateID: "geo/sample",
		Tree:       rawtree.New(map[string]any{"sample_id": "GSM1"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Quarantined)
	assert.Zero(t, summary.Integrated)
	assert.Zero(t, summary.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_SummarizesHeldEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	heldID := model.MappingID("geo", model.KindExpression, "GSM2_TP53_TPM")
	mock.ExpectQuery("SELECT (.+) FROM omics.entity_mapping").
		WithArgs("loaded", "geo").
		WillReturnRows(pgxmock.NewRows(mappingCols).AddRow(
			heldID, "geo", "expression", "GSM2_TP53_TPM",
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), strPtr("GSM2"),
			"direct", "loaded", (*string)(nil), time.Now().UTC(),
		))
	// Referenced sample missing: entry holds.
	mock.ExpectQuery("SELECT (.+) FROM omics.entity_mapping WHERE mapping_id").
		WillReturnRows(pgxmock.NewRows(mappingCols))

	orch := newTestOrchestrator(mock)
	report, summary, err := orch.Reconcile(context.Background(), "geo")
	require.NoError(t, err)
	assert.Zero(t, report.Advanced)
	require.Len(t, report.Held, 1)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.Warnings)
	require.NotEmpty(t, summary.Errors[model.CategoryLedger])
	assert.Contains(t, summary.Errors[model.CategoryLedger][0], "GSM2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueQuarantined(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM omics.entity_mapping").
		WithArgs("quarantined", "geo").
		WillReturnRows(pgxmock.NewRows(mappingCols).
			AddRow("id1", "geo", "sample", "raw:abc",
				(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
				"direct", "quarantined", strPtr("required field missing"), now).
			AddRow("id2", "geo", "expression", "GSM1_TP53_TPM",
				(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), strPtr("GSM1"),
				"direct", "quarantined", strPtr("store rejected"), now))

	expectStageWrite(mock) // id1 back to pending
	expectStageWrite(mock) // id2 back to pending

	orch := newTestOrchestrator(mock)
	released, err := orch.RequeueQuarantined(context.Background(), "geo")
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
