package testutil

// MultiplyGraph asks for input, multiplies two numbers with a tool and
// returns to the input state.
const MultiplyGraph = `{"initial": "ask", "states": {
  "ask": {"type": "input", "transition": {"next": "compute"}},
  "compute": {"type": "tool", "transition": {"next": "ask"}, "tool": "multiply", "tool_inputs": ["a", "b"]}
}}`

// RouterGraph routes user input to one of several states and ends on "bye".
const RouterGraph = `
initial: ask
states:
  ask:
    type: input
    transition:
      math:
        target: compute
        description: The user wants a calculation
      chat:
        target: smalltalk
        description: The user is chatting
      quit:
        target: bye
        description: The user wants to leave
  compute:
    type: tool
    tool: multiply
    tool_inputs: [a, b]
    transition:
      next: ask
  smalltalk:
    type: generative
    transition:
      next: ask
  bye:
    type: generative
    response: "Goodbye!"
    is_terminal: true
`

// GreeterGraph starts with a generative greeting, collects one input, echoes
// it and terminates.
const GreeterGraph = `
initial: greet
states:
  greet:
    type: generative
    response: "Hello! What is your name?"
    transition: listen
  listen:
    type: input
    transition: reply
  reply:
    type: generative
    response: "Nice to meet you, {{.last_user_message}}."
`
