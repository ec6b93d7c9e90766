// Package preprocessing provides column transforms for the wizard's
// transform step: standard and min-max scaling and logarithms.
//
// Transforms operate on gonum matrices and implement model.Transformer;
// Apply runs one of them on a frame column and appends the result.
package preprocessing
