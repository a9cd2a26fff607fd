// Package data reads market depth and time-and-sales CSV files and pairs
// them into environment ticks.
//
// Depth rows are date,time,ap1..apN,av1..avN,bp1..bpN,bv1..bvN and trade
// rows are date,time,price,size. Both files carry a header line and are
// sorted by time. Times are HH:MM:SS.mmm.
package data
