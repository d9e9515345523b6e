// Package signals converts raw event data into numeric surprise values and
// classifies them as shocks.
//
// The package has three parts:
//
//  1. A restricted arithmetic expression evaluator. Transform expressions
//     are configuration, not code, so the evaluator supports only the four
//     arithmetic operators, unary minus, parentheses, numeric literals and
//     field references into an event's raw_data mapping. Anything else is
//     rejected at parse time.
//
//  2. A shock detector: a pure function that z-scores a value against the
//     transform's signal history and flags it when the magnitude exceeds
//     the transform's threshold. Histories shorter than five samples or
//     with zero variance fall back to a fixed absolute-magnitude test,
//     because a z-score from such a history is not meaningful.
//
//  3. The signal factory, which applies every matching transform to an
//     event. Transforms that reference absent fields or fail to evaluate
//     are skipped for that event: heterogeneous event schemas mean most
//     transforms do not apply to most events, so partial failure is the
//     steady state. Skips are still reported in the result so callers can
//     tell "nothing matched" apart from "everything errored".
package signals
