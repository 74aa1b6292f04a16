package main

import "github.com/charmbracelet/lipgloss"

// Terminal styles for the progress line and run summary.
var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	styleFailure = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)
