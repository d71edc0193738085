/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command podfitctl is a thin HTTP client for podfit-controller,
// giving operators the add-node/list-nodes/schedule-pod CLI surface
// spec.md §6 describes. Grounded on the teacher's preference for
// stdlib flag over a CLI framework in its own cmd/ entrypoints, and on
// the pack's use of olekukonko/tablewriter for columnar terminal
// output.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	addr := os.Getenv("PODFIT_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch os.Args[1] {
	case "add-node":
		err = addNode(client, addr, os.Args[2:])
	case "remove-node":
		err = removeNode(client, addr, os.Args[2:])
	case "list-nodes":
		err = listNodes(client, addr, os.Args[2:])
	case "schedule-pod":
		err = schedulePod(client, addr, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: podfitctl <add-node|remove-node|list-nodes|schedule-pod> [flags]")
}

func addNode(client *http.Client, addr string, args []string) error {
	fs := flag.NewFlagSet("add-node", flag.ExitOnError)
	cpu := fs.Int("cpu", 100, "cpu_capacity for the node")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: podfitctl add-node <id> [--cpu N]")
	}
	nodeID := fs.Arg(0)

	body, _ := json.Marshal(map[string]interface{}{
		"node_id":      nodeID,
		"cpu_capacity": *cpu,
	})
	resp, err := client.Post(addr+"/add_node", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return requestError(resp)
	}
	fmt.Printf("✓ node %s added (cpu=%d)\n", nodeID, *cpu)
	return nil
}

func removeNode(client *http.Client, addr string, args []string) error {
	fs := flag.NewFlagSet("remove-node", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: podfitctl remove-node <id>")
	}
	nodeID := fs.Arg(0)

	body, _ := json.Marshal(map[string]string{"node_id": nodeID})
	resp, err := client.Post(addr+"/remove_node", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return requestError(resp)
	}
	fmt.Printf("✓ node %s removed\n", nodeID)
	return nil
}

func schedulePod(client *http.Client, addr string, args []string) error {
	fs := flag.NewFlagSet("schedule-pod", flag.ExitOnError)
	cpu := fs.Int("cpu", 10, "cpu_request for the pod")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: podfitctl schedule-pod <id> [--cpu N]")
	}
	podID := fs.Arg(0)

	body, _ := json.Marshal(map[string]interface{}{
		"pod_id":      podID,
		"cpu_request": *cpu,
	})
	resp, err := client.Post(addr+"/schedule_pod", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return requestError(resp)
	}

	var out struct {
		Message string `json:"message"`
		Node    string `json:"node"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if out.Node == "" {
		fmt.Printf("… pod %s is pending (no node fits)\n", podID)
	} else {
		fmt.Printf("✓ pod %s -> node %s\n", podID, out.Node)
	}
	return nil
}

type nodeListEntry struct {
	ContainerID  string   `json:"container_id"`
	CPUCapacity  int      `json:"cpu_capacity"`
	CPUAvailable int      `json:"cpu_available"`
	Health       string   `json:"health"`
	Pods         []string `json:"pods"`
}

func listNodes(client *http.Client, addr string, _ []string) error {
	resp, err := client.Get(addr + "/list_nodes")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return requestError(resp)
	}

	var nodes map[string]nodeListEntry
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return err
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		fmt.Println("(no nodes)")
		return nil
	}

	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"Node", "Health", "Capacity", "Available", "Pods"})
	for _, id := range ids {
		n := nodes[id]
		summary.Append([]string{
			id, n.Health,
			fmt.Sprintf("%d", n.CPUCapacity),
			fmt.Sprintf("%d", n.CPUAvailable),
			fmt.Sprintf("%d", len(n.Pods)),
		})
	}
	summary.Render()

	for _, id := range ids {
		n := nodes[id]
		glyph := "✗"
		if n.Health == "Healthy" {
			glyph = "✓"
		}
		fmt.Printf("%s %s\n", glyph, id)
		for i, podID := range n.Pods {
			branch := "├─"
			if i == len(n.Pods)-1 {
				branch = "└─"
			}
			fmt.Printf("  %s %s\n", branch, podID)
		}
	}
	return nil
}

func requestError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: %s", resp.Status, string(data))
}
