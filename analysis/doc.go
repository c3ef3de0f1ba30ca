// Package analysis turns a decoded clip into a fake-voice score and the
// derived series that the plots and the report are drawn from.
package analysis
