//go:build windows

package main

func watchDumpSignal(string) {}
