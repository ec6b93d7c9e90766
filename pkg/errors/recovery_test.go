package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestRecover_WithPanic tests the Recover function when a panic occurs
func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		panic("test panic message")
	}

	err := testFunc()

	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}

	if panicErr.Operation != "TestOperation" {
		t.Errorf("Expected operation 'TestOperation', got '%s'", panicErr.Operation)
	}

	if panicErr.PanicValue != "test panic message" {
		t.Errorf("Expected panic value 'test panic message', got '%v'", panicErr.PanicValue)
	}

	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}

	// Check error message format
	expectedMsg := "panic in TestOperation: test panic message"
	if panicErr.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, panicErr.Error())
	}
}

// TestRecover_WithoutPanic tests the Recover function when no panic occurs
func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		return nil // Normal return, no panic
	}

	err := testFunc()

	if err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

// TestRecover_WithExistingError tests Recover when function has existing error and panic occurs
func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		err = originalErr // Set an error first
		panic("panic after error")
	}

	err := testFunc()

	if err == nil {
		t.Fatal("Expected error from recovered panic with existing error, got nil")
	}

	// Should be a wrapped error containing both panic and original error info
	errMsg := err.Error()
	if !strings.Contains(errMsg, "panic in TestOperation") {
		t.Errorf("Error message should contain panic info: %s", errMsg)
	}

	if !strings.Contains(errMsg, "original error") {
		t.Errorf("Error message should contain original error: %s", errMsg)
	}

	// Should be able to unwrap to original error
	if !errors.Is(err, originalErr) {
		t.Error("Should be able to identify original error with errors.Is")
	}
}

// TestSafeExecute_Success tests SafeExecute with successful function
func TestSafeExecute_Success(t *testing.T) {
	err := SafeExecute("test operation", func() error {
		return nil // Success case
	})

	if err != nil {
		t.Fatalf("Expected no error for successful operation, got: %v", err)
	}
}

// TestSafeExecute_FunctionError tests SafeExecute with function returning error
func TestSafeExecute_FunctionError(t *testing.T) {
	originalErr := fmt.Errorf("function error")

	err := SafeExecute("test operation", func() error {
		return originalErr
	})

	if err != originalErr {
		t.Fatalf("Expected original error, got: %v", err)
	}
}

// TestSafeExecute_Panic tests SafeExecute with panicking function
func TestSafeExecute_Panic(t *testing.T) {
	err := SafeExecute("test operation", func() error {
		panic("test panic in safe execute")
	})

	if err == nil {
		t.Fatal("Expected error from panic in SafeExecute, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}

	if panicErr.PanicValue != "test panic in safe execute" {
		t.Errorf("Expected panic value 'test panic in safe execute', got '%v'", panicErr.PanicValue)
	}
}

func TestSafeExecute_PlotLikePanic(t *testing.T) {
	err := SafeExecute("render residual plot", func() error {
		var values []float64
		_ = values[3]
		return nil
	})

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if !strings.Contains(panicErr.String(), "Stack trace") {
		t.Error("String() should include the stack trace")
	}
}
