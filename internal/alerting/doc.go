// Package alerting is the business boundary of herald. It defines the Engine
// (the pure batch pipeline from raw records to ranked representatives), the
// Service (run lifecycle, publish-then-commit and the manual override
// surface), the Publisher and PoolStore interfaces, and domain models.
package alerting
