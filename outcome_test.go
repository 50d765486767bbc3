package teamgate

import "testing"

func TestSucceededMatchesStatus(t *testing.T) {
	if !Success().Succeeded() {
		t.Fatal("Success outcome must report Succeeded")
	}

	failures := []Outcome{
		BadRequest("x"),
		Unauthorized("x"),
		Forbidden("x"),
		NotFound("x"),
		PreconditionRequired("x"),
		GenericFailure("x"),
	}
	for _, o := range failures {
		if o.Succeeded() {
			t.Fatalf("status %s must not report Succeeded", o.Status)
		}
	}
}

func TestFailAsPanicsOnSuccess(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected FailAs to panic on a successful outcome")
		}
	}()
	_ = FailAs[string](Success())
}

func TestPartialAsAllowsOnlyPreconditionRequired(t *testing.T) {
	r := PartialAs(PreconditionRequired("pending"), 42)
	if r.Status != StatusPreconditionRequired || r.Value != 42 {
		t.Fatalf("unexpected partial result: %+v", r)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected PartialAs to panic on a non-precondition status")
		}
	}()
	_ = PartialAs(BadRequest("nope"), 42)
}

func TestConvertResultPreservesFailure(t *testing.T) {
	src := FailAs[int](Outcome{
		Status: StatusForbidden,
		Info:   "not allowed",
		Errors: []FieldError{{Key: "team", Message: "wrong tier"}},
	})

	dst := ConvertResult[string](src)
	if dst.Status != StatusForbidden || dst.Info != "not allowed" {
		t.Fatalf("conversion lost outcome data: %+v", dst)
	}
	if len(dst.Errors) != 1 || dst.Errors[0].Key != "team" {
		t.Fatalf("conversion lost field errors: %+v", dst.Errors)
	}
	if dst.Value != "" {
		t.Fatalf("converted failure must carry the zero value, got %q", dst.Value)
	}
}

func TestConvertResultPanicsOnSuccess(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected ConvertResult to panic on a successful result")
		}
	}()
	_ = ConvertResult[string](Succeed(1))
}

func TestMapResultTransformsOnlySuccess(t *testing.T) {
	doubled := MapResult(Succeed(21), func(v int) int { return v * 2 })
	if !doubled.Succeeded() || doubled.Value != 42 {
		t.Fatalf("unexpected mapped result: %+v", doubled)
	}

	failed := MapResult(FailAs[int](NotFound("gone")), func(v int) int {
		t.Fatal("transform must not run for a failed result")
		return 0
	})
	if failed.Status != StatusNotFound {
		t.Fatalf("unexpected mapped failure: %+v", failed)
	}
}
