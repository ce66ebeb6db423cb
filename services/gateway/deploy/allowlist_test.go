package deploy

import "testing"

func TestCheckAllowed_AcceptsCreateOrReplaceView(t *testing.T) {
	ref, err := checkAllowed("CREATE OR REPLACE VIEW ANALYTICS.PUBLIC.FOO AS SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ObjectType != "VIEW" {
		t.Fatalf("expected VIEW, got %s", ref.ObjectType)
	}
	if ref.Name != "ANALYTICS.PUBLIC.FOO" {
		t.Fatalf("unexpected name: %s", ref.Name)
	}
}

func TestCheckAllowed_AcceptsCreateIfNotExistsProcedure(t *testing.T) {
	ref, err := checkAllowed("CREATE IF NOT EXISTS PROCEDURE FOO() RETURNS STRING AS $$ SELECT 1 $$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ObjectType != "PROCEDURE" {
		t.Fatalf("expected PROCEDURE, got %s", ref.ObjectType)
	}
}

func TestCheckAllowed_RejectsDropTable(t *testing.T) {
	_, err := checkAllowed("CREATE OR REPLACE VIEW FOO AS SELECT 1; DROP TABLE BAR")
	if err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestCheckAllowed_RejectsTruncate(t *testing.T) {
	_, err := checkAllowed("TRUNCATE TABLE FOO")
	if err == nil {
		t.Fatalf("expected rejection")
	}
}

func TestCheckAllowed_RejectsNonMatchingShape(t *testing.T) {
	_, err := checkAllowed("INSERT INTO FOO VALUES (1)")
	if err == nil {
		t.Fatalf("expected rejection for non-DDL shape")
	}
}

func TestCheckAllowed_RejectsAlterAccount(t *testing.T) {
	_, err := checkAllowed("CREATE OR REPLACE VIEW FOO AS SELECT 1; ALTER ACCOUNT SET X = 1")
	if err == nil {
		t.Fatalf("expected rejection")
	}
}
