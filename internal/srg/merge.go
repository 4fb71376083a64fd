package srg

import (
	"fmlsetup/internal/logging"
)

// MergeResult is the outcome of merging a client and a server table.
type MergeResult struct {
	// Shared holds every mapping both sides agree on, exactly once.
	Shared SymbolTable
	// Client and Server hold the remaining side-only mappings.
	Client SymbolTable
	Server SymbolTable
}

// Merge splits two side tables into the mappings they share and the mappings
// only one side has. A key is shared when both sides map it to the same value;
// shared keys are removed from both side tables. The inputs are not modified.
func Merge(client, server SymbolTable) MergeResult {
	result := MergeResult{
		Shared: NewSymbolTable(),
		Client: client.Clone(),
		Server: server.Clone(),
	}

	for _, kind := range Kinds {
		c, s := result.Client[kind], result.Server[kind]
		for key, value := range c {
			if other, ok := s[key]; ok && other == value {
				result.Shared[kind][key] = value
				delete(c, key)
				delete(s, key)
			}
		}
	}

	return result
}

// GenerateJoined merges the tables at clientPath and serverPath and writes the
// shared table to outPath.
func GenerateJoined(clientPath, serverPath, outPath string) (MergeResult, error) {
	logging.Info("generating merged symbol table", "client", clientPath, "server", serverPath)

	client, err := ReadFile(clientPath)
	if err != nil {
		return MergeResult{}, err
	}
	server, err := ReadFile(serverPath)
	if err != nil {
		return MergeResult{}, err
	}

	result := Merge(client, server)
	if err := result.Shared.WriteFile(outPath); err != nil {
		return result, err
	}

	logging.Info("merged symbol table written", "path", outPath,
		"shared", result.Shared.Len(),
		"client_only", result.Client.Len(),
		"server_only", result.Server.Len())
	return result, nil
}
